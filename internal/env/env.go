package env

import (
	"github.com/vinste/airzone-local/internal/config"
)

var Cfg *config.Config
