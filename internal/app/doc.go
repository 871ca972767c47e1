// Package app sequences one downloader invocation: establish a session,
// list loans, borrow the requested title when needed, download its
// chapters, write the metadata file and playlist, and return the title.
//
// # Usage
//
//	a, err := app.New(settings, printer.Handle)
//	if err != nil {
//	    os.Exit(app.ExitCode(err, nil))
//	}
//
//	report, err := a.Run(ctx, app.Options{
//	    Credentials: cloudlibrary.Credentials{Username: "12345678", Password: "0000"},
//	    MediaID:     "abc123",
//	    DumpJSON:    true,
//	    Release:     true,
//	})
//	os.Exit(app.ExitCode(err, report))
//
// Authentication and catalog errors abort the run. Lending errors are
// reported, and the download goes ahead whenever the title is still
// accessible. Failed chapters never abort a title; they are tallied in
// the report and turn into exit status 5.
package app
