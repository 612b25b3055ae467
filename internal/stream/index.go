package stream

import (
	"encoding/json"
	"net/http"
)

const indexHTML = `<!DOCTYPE html>
<html>
<head>
  <title>Posture Stream</title>
  <style>
    body { font-family: Arial, sans-serif; text-align: center; background: #1a1a1a; color: white; padding: 20px; }
    h1 { color: #4CAF50; }
    img { max-width: 90%; border: 3px solid #4CAF50; border-radius: 10px; margin: 20px; }
    .info { background: #2d2d2d; padding: 20px; border-radius: 10px; margin: 20px auto; max-width: 600px; }
    .endpoint { background: #444; padding: 10px; border-radius: 5px; font-family: monospace; margin: 10px 0; }
  </style>
</head>
<body>
  <h1>Posture Streaming Relay</h1>
  <img src="/video_feed" alt="Live Stream">
  <div class="info">
    <h3>Stream Endpoints</h3>
    <p><strong>MJPEG Stream:</strong></p>
    <div class="endpoint">/video_feed</div>
    <p><strong>Status Feed:</strong></p>
    <div class="endpoint">/ws</div>
    <p>Frames served: <span id="counter">0</span></p>
    <p>Latest posture: <span id="label">n/a</span> (score <span id="score">-</span>)</p>
  </div>
  <script>
    setInterval(() => {
      fetch('/stats').then(r => r.json()).then(data => {
        document.getElementById('counter').textContent = data.frames;
      });
    }, 1000);
    const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');
    ws.onmessage = (msg) => {
      const event = JSON.parse(msg.data);
      document.getElementById('label').textContent = event.label;
      document.getElementById('score').textContent = event.score;
    };
  </script>
</body>
</html>
`

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
