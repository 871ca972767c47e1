package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"github.com/handiism/cloudlibrary-downloader/internal/http"
	"github.com/handiism/cloudlibrary-downloader/internal/model"
)

// Settings holds all configuration options.
type Settings struct {
	// Service settings
	Library           string `json:"library" env:"CLOUDLIBRARY_LIBRARY"`
	EbookBaseURL      string `json:"ebook_base_url" env:"CLOUDLIBRARY_EBOOK_URL"`
	AudioBaseURL      string `json:"audio_base_url" env:"CLOUDLIBRARY_AUDIO_URL"`
	FindawayBaseURL   string `json:"findaway_base_url" env:"CLOUDLIBRARY_FINDAWAY_URL"`
	RequestTimeoutSec int    `json:"request_timeout_seconds" env:"CLOUDLIBRARY_REQUEST_TIMEOUT"`

	// Download settings
	DownloadsPath                 string  `json:"downloads_path" env:"CLOUDLIBRARY_DOWNLOADS_PATH"`
	MaxConcurrentChaptersDownload int     `json:"max_concurrent_chapters" env:"CLOUDLIBRARY_MAX_CONCURRENT_CHAPTERS"`
	DownloadMaxRetries            int     `json:"download_max_retries" env:"CLOUDLIBRARY_DOWNLOAD_MAX_RETRIES"`
	DownloadRetryCooldown         float64 `json:"download_retry_cooldown" env:"CLOUDLIBRARY_DOWNLOAD_RETRY_COOLDOWN"`
	DownloadRetryExponent         float64 `json:"download_retry_exponent" env:"CLOUDLIBRARY_DOWNLOAD_RETRY_EXPONENT"`

	// File naming
	FolderNameFormat      string `json:"folder_name_format"`
	ChapterFileNameFormat string `json:"chapter_file_name_format"`

	// Cover art settings
	SaveCoverArtInFolder bool `json:"save_cover_art_in_folder" env:"CLOUDLIBRARY_SAVE_COVER"`
	SaveCoverArtInTags   bool `json:"save_cover_art_in_tags"`
	CoverArtMaxSize      int  `json:"cover_art_max_size"`

	// Playlist and tags
	CreatePlaylist bool   `json:"create_playlist" env:"CLOUDLIBRARY_CREATE_PLAYLIST"`
	PlaylistFormat string `json:"playlist_format"` // m3u, pls
	M3UExtended    bool   `json:"m3u_extended"`
	ModifyTags     bool   `json:"modify_tags" env:"CLOUDLIBRARY_MODIFY_TAGS"`

	LogLevel string `json:"log_level" env:"CLOUDLIBRARY_LOG_LEVEL"` // info, debug
}

// DefaultSettings returns settings with default values.
func DefaultSettings() *Settings {
	return &Settings{
		EbookBaseURL:      "https://ebook.yourcloudlibrary.com",
		AudioBaseURL:      "https://audio.yourcloudlibrary.com",
		FindawayBaseURL:   "https://api.findawayworld.com",
		RequestTimeoutSec: 60,

		DownloadsPath:                 "audiobooks",
		MaxConcurrentChaptersDownload: 4,
		DownloadMaxRetries:            3,
		DownloadRetryCooldown:         0.5,
		DownloadRetryExponent:         4.0,

		FolderNameFormat:      "{id} - {author} - {title}",
		ChapterFileNameFormat: "{chapternum} - {title}",

		SaveCoverArtInFolder: false,
		SaveCoverArtInTags:   true,
		CoverArtMaxSize:      1000,

		CreatePlaylist: false,
		PlaylistFormat: "m3u",
		M3UExtended:    true,
		ModifyTags:     true,

		LogLevel: "info",
	}
}

// Load reads settings from a JSON file. A missing file yields the defaults.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(), nil
		}
		return nil, err
	}

	settings := DefaultSettings()
	if err := json.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return settings, nil
}

// LoadEnv overlays environment variables onto s. Variables from a .env file
// in the working directory are loaded first when one exists; real
// environment variables win over the file.
func (s *Settings) LoadEnv() error {
	_ = godotenv.Load()
	if err := env.Parse(s); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	return nil
}

// Save writes settings to a JSON file.
func (s *Settings) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate checks value ranges. It does not check credentials; those are
// validated by the session layer before any network call.
func (s *Settings) Validate() error {
	for name, raw := range map[string]string{
		"ebook_base_url":    s.EbookBaseURL,
		"audio_base_url":    s.AudioBaseURL,
		"findaway_base_url": s.FindawayBaseURL,
	} {
		if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
			return fmt.Errorf("%s must be an http(s) URL, got %q", name, raw)
		}
	}
	if s.MaxConcurrentChaptersDownload < 1 {
		return fmt.Errorf("max_concurrent_chapters must be at least 1")
	}
	if s.DownloadMaxRetries < 1 {
		return fmt.Errorf("download_max_retries must be at least 1")
	}
	if s.DownloadRetryCooldown < 0 || s.DownloadRetryExponent < 1 {
		return fmt.Errorf("download_retry_cooldown cannot be negative and download_retry_exponent must be at least 1")
	}
	if f := s.ChapterFileNameFormat; f != "" && !strings.Contains(f, "{chapternum}") && !strings.Contains(f, "{index}") {
		return fmt.Errorf("chapter_file_name_format must contain {chapternum} or {index}, got %q", f)
	}
	if s.RequestTimeoutSec < 1 {
		return fmt.Errorf("request_timeout_seconds must be at least 1")
	}
	if s.DownloadsPath == "" {
		return fmt.Errorf("downloads_path cannot be empty")
	}
	return nil
}

// RequestTimeout returns the per-request timeout as a duration.
func (s *Settings) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSec) * time.Second
}

// RetryCooldown returns the base retry cooldown as a duration.
func (s *Settings) RetryCooldown() time.Duration {
	return time.Duration(s.DownloadRetryCooldown * float64(time.Second))
}

// Debug reports whether HTTP tracing is enabled.
func (s *Settings) Debug() bool {
	return strings.EqualFold(s.LogLevel, "debug")
}

// ToPathConfig converts settings to a model.PathConfig.
func (s *Settings) ToPathConfig() *model.PathConfig {
	return &model.PathConfig{
		DownloadsPath:         s.DownloadsPath,
		FolderNameFormat:      s.FolderNameFormat,
		ChapterFileNameFormat: s.ChapterFileNameFormat,
	}
}

// ToClientConfig converts settings to an http.ClientConfig. Request retries
// share the chapter download attempt budget and backoff.
func (s *Settings) ToClientConfig() http.ClientConfig {
	cfg := http.DefaultClientConfig()
	cfg.Timeout = s.RequestTimeout()
	cfg.MaxAttempts = s.DownloadMaxRetries
	cfg.Backoff = s.Backoff()
	cfg.Debug = s.Debug()
	return cfg
}

// Backoff returns the retry schedule.
func (s *Settings) Backoff() http.Backoff {
	return http.Backoff{Cooldown: s.RetryCooldown(), Exponent: s.DownloadRetryExponent}
}
