package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"taskdispatch/internal/dispatcher"
	"taskdispatch/internal/model"

	"gopkg.in/yaml.v3"
)

// fileConfig структура YAML-файла конфигурации
type fileConfig struct {
	Dispatcher fileDispatcher   `yaml:"dispatcher"`
	Schedules  []model.Schedule `yaml:"schedules"`
}

type fileDispatcher struct {
	dispatcher.ConfigPatch `yaml:",inline"`
	TaskTimeout            string `yaml:"taskTimeout"`
}

// loadFile читает YAML-файл; неизвестные поля считаются ошибкой
func loadFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg, err := parseFile(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

func parseFile(data []byte) (*fileConfig, error) {
	cfg := &fileConfig{}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return cfg, nil
}
