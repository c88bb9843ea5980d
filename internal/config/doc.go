// Package config loads shelf's settings.
//
// # Sources
//
// Load layers its sources, later ones winning:
//
//  1. built-in defaults
//  2. the TOML file (~/.config/shelf/config.toml unless a path is given);
//     a missing file is not an error
//  3. SHELF_* environment variables
//
// LoadDotenv, called by the command before Load, copies .env style files
// into the environment without overriding variables already set, so a
// checked-out project can keep its API keys in .env.
//
// # Settings
//
//	TOML key          environment              default
//	server_url        SHELF_SERVER_URL         http://localhost:5000
//	image_host_url    SHELF_IMAGE_HOST_URL     https://api.imgbb.com
//	image_host_key    SHELF_IMAGE_HOST_KEY     (none)
//	identity_url      SHELF_IDENTITY_URL       https://identitytoolkit.googleapis.com
//	token_url         SHELF_TOKEN_URL          https://securetoken.googleapis.com
//	identity_api_key  SHELF_IDENTITY_API_KEY   (none)
//	data_dir          SHELF_DATA_DIR           ~/.local/share/shelf
//	log_level         SHELF_LOG_LEVEL          info
//	request_timeout   SHELF_REQUEST_TIMEOUT    10s
//	refresh_every     SHELF_REFRESH_EVERY      30s
//
// Durations use Go syntax ("15s", "2m"). Empty values fall back to the
// default. Paths starting with ~ are expanded.
//
// Missing API keys are not a load error: reading the catalogue works
// without them, and the image host and identity clients report the missing
// key when first used.
//
// # Derived paths
//
//   - SessionPath: <data_dir>/session.db, the persisted sign-in
//   - LogPath: <data_dir>/shelf.log, the client log shown on the activity page
package config
