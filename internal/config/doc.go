// Package config provides configuration management for cloudlibrary-downloader.
//
// Settings are layered, lowest precedence first:
//
//  1. DefaultSettings()
//  2. An optional JSON settings file (Load)
//  3. Environment variables, including a .env file (LoadEnv)
//  4. Command line flags, applied by cmd/cloudlibrary-dl
//
// # Loading
//
//	settings, err := config.Load("/path/to/config.json")
//	if err != nil {
//	    return err
//	}
//	if err := settings.LoadEnv(); err != nil {
//	    return err
//	}
//	if err := settings.Validate(); err != nil {
//	    return err
//	}
//
// # Environment Variables
//
//	CLOUDLIBRARY_LIBRARY                 library identifier used in URLs
//	CLOUDLIBRARY_DOWNLOADS_PATH          root directory for downloaded titles
//	CLOUDLIBRARY_MAX_CONCURRENT_CHAPTERS chapter worker pool size
//	CLOUDLIBRARY_DOWNLOAD_MAX_RETRIES    attempts per chapter
//	CLOUDLIBRARY_LOG_LEVEL               "debug" traces HTTP requests
package config
