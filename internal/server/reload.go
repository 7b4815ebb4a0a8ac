package server

// Routes served next to the site.
const (
	ReloadScriptPath = "/__sitesmith/reload.js"
	WebSocketPath    = "/__sitesmith/ws"
	StatusPath       = "/__sitesmith/status"
	HealthPath       = "/health"
)

// reloadScript is injected into every HTML page. It reconnects after the
// server restarts and keeps an error overlay up until the next good build.
const reloadScript = `(function () {
  var overlayId = "__sitesmith_error";

  function showError(text) {
    var el = document.getElementById(overlayId);
    if (!el) {
      el = document.createElement("pre");
      el.id = overlayId;
      el.style.cssText = "position:fixed;inset:0;margin:0;padding:2em;overflow:auto;" +
        "background:rgba(20,0,0,.92);color:#fbb;font:14px/1.4 monospace;z-index:2147483647";
      document.body.appendChild(el);
    }
    el.textContent = text;
  }

  function clearError() {
    var el = document.getElementById(overlayId);
    if (el) el.remove();
  }

  function updateCSS(target) {
    var links = document.querySelectorAll('link[rel="stylesheet"]');
    var found = false;
    links.forEach(function (link) {
      var url = new URL(link.href, location.href);
      if (url.pathname.replace(/^\//, "") === target) {
        url.searchParams.set("t", Date.now());
        link.href = url.toString();
        found = true;
      }
    });
    if (!found) location.reload();
  }

  function connect() {
    var proto = location.protocol === "https:" ? "wss:" : "ws:";
    var ws = new WebSocket(proto + "//" + location.host + "` + WebSocketPath + `");

    ws.onmessage = function (event) {
      var msg = JSON.parse(event.data);
      switch (msg.type) {
        case "full_reload":
          location.reload();
          break;
        case "css_update":
          clearError();
          updateCSS(msg.target);
          break;
        case "build_error":
          showError((msg.target ? msg.target + ": " : "") + msg.content);
          break;
      }
    };

    ws.onclose = function () {
      setTimeout(connect, 1000);
    };
  }

  connect();
})();
`
