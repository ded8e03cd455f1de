package globals

import "github.com/hashicorp/go-hclog"

var AppLogger = hclog.New(&hclog.LoggerOptions{
	Name:  "haven-client",
	Level: hclog.LevelFromString("INFO"),
})
