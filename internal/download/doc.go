// Package download fetches the chapters of a borrowed audiobook.
//
// # Pipeline
//
// The Pipeline downloads every chapter of one title:
//
//  1. Resolve the chapter to a stream (once per attempt)
//  2. Skip it if a complete file is already on disk
//  3. Stream it to "<name>.part"
//  4. Verify the byte count against Content-Length
//  5. Rename to the final name and tag MP3 files (optional)
//
// # Basic Usage
//
//	pipeline := download.NewPipeline(httpClient, resolver, download.Options{
//	    Workers:     4,
//	    MaxAttempts: 3,
//	    Backoff:     http.Backoff{Cooldown: 500 * time.Millisecond, Exponent: 4},
//	}, printer.Handle)
//
//	outcomes := pipeline.Download(ctx, sess, meta, "/home/user/audiobooks/abc123 - Jane Doe - Some Book")
//	for _, o := range outcomes {
//	    if o.Result == model.Failed {
//	        fmt.Println(o.Reason)
//	    }
//	}
//
// # Concurrency
//
// Chapters are independent once the metadata is known, so Options.Workers
// of them run in parallel. The returned outcomes are indexed by chapter,
// never by completion order.
//
// # Retry Logic
//
// Any failure of an attempt (resolution, transport, empty payload, size
// mismatch) is retried up to Options.MaxAttempts tries in total, waiting
// Cooldown * Exponent^n between them and honoring Retry-After on 429.
// After the last try the ".part" file is removed so a later run starts the
// chapter over.
package download
