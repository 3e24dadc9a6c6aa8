// Command autopublish is the operator CLI for the auto-publish admission
// system: run a cycle, run the daemon, manage the candidate queue, read the
// decision log and edit the persisted admission settings.
package main
