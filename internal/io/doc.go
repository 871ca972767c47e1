// Package ioutils provides file writing and cover image helpers.
//
// # File Operations
//
//	// Replace a file without exposing a partial write
//	err := ioutils.WriteFile("/books/x/abc123.m3u", content)
//
//	// Write the metadata dump
//	err := ioutils.WriteJSON("/books/x/abc123.json", doc)
//
// # Image Processing
//
// The ImageService prepares cover art:
//
//	svc := ioutils.NewImageService()
//
//	// Fit within 1000x1000 and encode as JPEG
//	cover, _ := svc.PrepareCover(ctx, imageData, 1000)
package ioutils
