package config

import "github.com/wentf9/mirrorup/pkg/models"

// Configuration 对应 yaml 文件的顶层结构
type Configuration struct {
	LogLevel  string                     `yaml:"log_level,omitempty"`
	Transfer  models.TransferSettings    `yaml:"transfer"`
	Endpoints map[string]models.Endpoint `yaml:"endpoints"`
}

func NewConfiguration() *Configuration {
	return &Configuration{Endpoints: make(map[string]models.Endpoint)}
}
