// Package docs is the user-facing overview of sitesmith.
//
// sitesmith builds a static site from Go templates, stylesheets, scripts and
// images into two trees: an unminified development tree with sourcemaps and
// a minified production tree with a sitemap. The production tree can be
// uploaded over FTP, but only when every production task succeeded.
//
// # Quick Start
//
//	// Build, serve on localhost:3000 and reload the browser on change
//	sitesmith run
//
//	// Build the production tree and its sitemap
//	sitesmith run pro
//
//	// Build production and deploy if nothing failed
//	sitesmith run pd
//
//	// List every task
//	sitesmith tasks
//
// # Layout
//
// The default configuration expects:
//
//	src/templates/*.tmpl          pages, one HTML file each
//	src/templates/views/*.tmpl    partials available to every page
//	src/styles/style.css          stylesheet entry, @import is bundled
//	src/js/*.js                   scripts
//	src/assets/{svg,jpg,png}/     images, copied; SVG is minified in production
//
// Pages render with {{.Site.URL}}, {{.Page.Path}}, {{.Page.Source}} and
// {{.Profile}} available.
//
// # Configuration
//
// Settings live in .sitesmith.yml and can be overridden with SITESMITH_*
// environment variables or flags:
//
//	site_url: https://example.com
//	production:
//	  root: production
//	server:
//	  port: 3000
//	deploy:
//	  host: ftp.example.com
//	  remote_root: /www
//	  credentials_file: .sitesmith-credentials.toml
//
// Deploy secrets may be kept in the TOML credentials file instead of the main
// configuration.
//
// # Development Server
//
// The development server injects a small script into every HTML response.
// Stylesheet rebuilds swap the stylesheet in place, page and script rebuilds
// reload the page, and failed rebuilds show an overlay with the error. The
// page at /__sitesmith/status lists the latest result of every task.
package docs
