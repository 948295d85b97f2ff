package appidentityassets

import _ "embed"

// YAML is the embedded application identity used when no external
// `.fulmen/app.yaml` is found (installed binaries, tests outside the repo).
//
//go:embed app.yaml
var YAML []byte
