package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/wentf9/mirrorup/pkg/crypto"
	"github.com/wentf9/mirrorup/pkg/models"
	"gopkg.in/yaml.v3"
)

type Store interface {
	Load() (*Configuration, error)
	Save(cfg *Configuration) error
}

type defaultStore struct {
	Path    string
	KeyPath string // 用于加解密配置文件中的敏感字段
}

// Load 读取配置并解密口令,文件不存在时返回空配置
func (s *defaultStore) Load() (*Configuration, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewConfiguration(), nil
	}
	if err != nil {
		return nil, err
	}
	cfg := NewConfiguration()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.Path, err)
	}
	if cfg.Endpoints == nil {
		cfg.Endpoints = make(map[string]models.Endpoint)
	}

	var sealer *crypto.Sealer
	for name, ep := range cfg.Endpoints {
		if !crypto.IsSealed(ep.Password) && !crypto.IsSealed(ep.Passphrase) {
			continue
		}
		if sealer == nil {
			if sealer, err = s.sealer(); err != nil {
				return nil, err
			}
		}
		if ep.Password, err = sealer.OpenOrPlain(ep.Password); err != nil {
			return nil, fmt.Errorf("endpoint %s: password: %w", name, err)
		}
		if ep.Passphrase, err = sealer.OpenOrPlain(ep.Passphrase); err != nil {
			return nil, fmt.Errorf("endpoint %s: passphrase: %w", name, err)
		}
		cfg.Endpoints[name] = ep
	}
	return cfg, nil
}

// Save 加密口令后写入,内存中的 cfg 保持明文
func (s *defaultStore) Save(cfg *Configuration) error {
	sealer, err := s.sealer()
	if err != nil {
		return err
	}
	out := *cfg
	out.Endpoints = make(map[string]models.Endpoint, len(cfg.Endpoints))
	for name, ep := range cfg.Endpoints {
		if ep.Password, err = sealer.Seal(ep.Password); err != nil {
			return fmt.Errorf("endpoint %s: %w", name, err)
		}
		if ep.Passphrase, err = sealer.Seal(ep.Passphrase); err != nil {
			return fmt.Errorf("endpoint %s: %w", name, err)
		}
		out.Endpoints[name] = ep
	}

	data, err := yaml.Marshal(&out)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(s.Path, data, 0o600)
}

func (s *defaultStore) sealer() (*crypto.Sealer, error) {
	key, err := crypto.LoadOrCreateKey(s.KeyPath)
	if err != nil {
		return nil, err
	}
	return crypto.NewSealer(key)
}

func NewDefaultStore(path, keyPath string) Store {
	return &defaultStore{
		Path:    path,
		KeyPath: keyPath,
	}
}
