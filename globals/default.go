package globals

import "github.com/hashicorp/go-hclog"

var AppLogger = hclog.New(&hclog.LoggerOptions{
	Name:  "hubbub",
	Level: hclog.LevelFromString("DEBUG"),
})
