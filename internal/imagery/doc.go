// Package imagery asks an image enrichment service to attach a picture to a
// freshly published article.
package imagery
