// Package internal contains the implementation packages of the sitesmith CLI.
//
// # Package Organization
//
// The internal packages are organized by functional domain:
//
//   - taskgraph: Named tasks, prerequisite validation and the executor
//   - glob: Ordered include/exclude source sets over doublestar patterns
//   - pipeline: Source resolution, step chains and atomic output writes
//   - steps: Template rendering, stylesheet bundling and minification
//   - build: The task catalogue, profiles and the development session
//   - watcher: File system monitoring, watch bindings and run serialization
//   - server, websocket: The development server and browser reload hub
//   - sitemap: sitemap.xml generation from the produced pages
//   - deploy: FTP upload of the production tree
//   - config, logging, errors, version: Ambient support
//
// # Inter-Package Communication
//
//   - The build orchestrator owns one graph and one executor; there is no
//     global task registry
//   - The executor publishes task events; the orchestrator turns them into
//     metrics, status page results and reload messages
//   - The watcher maps changed paths to task names and hands them to a
//     serializer, which runs each name at most once at a time
//   - Every failure is a typed errors.PipelineError so callers can tell
//     configuration, transform, write and deploy failures apart
package internal
