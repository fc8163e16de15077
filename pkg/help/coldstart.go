package help

// QuickstartYAML is printed by the quickstart command.
const QuickstartYAML = `# green-optimizer Quick Start

pipeline: "capture -> extract metrics -> score -> recommend, cached per URL"

engines:
  browser: "Headless Chrome via DevTools, records every network exchange and code coverage (default)"
  http: "Plain HTTP fetch of the document and the assets it references, no coverage"
  auto: "Browser first, falls back to http when Chrome is unavailable"

commands:
  analyze_one: |
    green-optimizer analyze https://example.com

  analyze_batch: |
    green-optimizer --workers 8 analyze --urls "https://a.example,https://b.example" -o report.yaml

  force_recapture: |
    green-optimizer analyze --fresh https://example.com

  http_engine: |
    green-optimizer --engine http analyze https://example.com

  rescore_with_other_model: |
    green-optimizer models
    green-optimizer rescore --to green-2024.1 https://example.com

  rescore_from_capture: |
    green-optimizer rescore --reextract --id <analysis_id>

  optimize_assets: |
    green-optimizer optimize --out-dir optimized https://example.com

  history: |
    green-optimizer history --url https://example.com
    green-optimizer show https://example.com
    green-optimizer runs

  dashboard: |
    green-optimizer dashboard --addr 127.0.0.1:8080
    # JSON API: /api/analyze?url=..., /api/history, /api/models
    # MCP over HTTP: /mcp

  mcp_stdio: |
    green-optimizer mcp

config_file: |
  # green-optimizer.yaml (all keys optional)
  workers: 2
  capture_timeout: 45s
  freshness_window: 1h
  model_version: green-2025.1
  engine: auto
  database: green-optimizer.db
  artifacts_dir: green-results
  browser:
    remote: ""          # ws://127.0.0.1:9222/devtools/browser/...
    stealth: false
    viewport: {width: 1366, height: 768}
  green_host:
    mode: api           # api, static, chain or none
    static_file: green-hosts.txt
    cache_dir: .green-cache
    cache_ttl: 168h
  dashboard:
    addr: 127.0.0.1:8080

exit_codes:
  0: "every URL analyzed"
  1: "at least one analysis failed, or interrupted"
  2: "configuration or usage error"

invariants:
  - "Concurrent requests for the same URL share a single capture"
  - "A cached result is reused only when it is fresh and scored with the current model"
  - "Failed analyses are never cached"
  - "invalidate drops the cached result; stored history is kept and marked"
`
