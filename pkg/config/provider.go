package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/wentf9/mirrorup/pkg/models"
)

// Provider 按名称或 [user@]host[:port] 查找已保存的端点
type Provider struct {
	cfg *Configuration
}

func NewProvider(cfg *Configuration) *Provider {
	if cfg.Endpoints == nil {
		cfg.Endpoints = make(map[string]models.Endpoint)
	}
	return &Provider{cfg: cfg}
}

// Find 返回匹配 input 的端点名称,未找到时返回空串
func (p *Provider) Find(input string) string {
	if _, ok := p.cfg.Endpoints[input]; ok {
		return input
	}
	for _, name := range p.Names() {
		ep := p.cfg.Endpoints[name]
		if ep.Scheme == models.SchemeLocal {
			continue
		}
		candidates := []string{ep.Host, ep.Address()}
		if ep.User != "" {
			candidates = append(candidates,
				fmt.Sprintf("%s@%s", ep.User, ep.Host),
				fmt.Sprintf("%s@%s", ep.User, ep.Address()))
		}
		if slices.Contains(candidates, input) {
			return name
		}
	}
	return ""
}

func (p *Provider) Get(name string) (models.Endpoint, bool) {
	ep, ok := p.cfg.Endpoints[name]
	return ep, ok
}

func (p *Provider) Add(name string, ep models.Endpoint) {
	p.cfg.Endpoints[name] = ep
}

func (p *Provider) Delete(name string) bool {
	if _, ok := p.cfg.Endpoints[name]; !ok {
		return false
	}
	delete(p.cfg.Endpoints, name)
	return true
}

// Names 按字典序返回所有端点名称
func (p *Provider) Names() []string {
	names := make([]string, 0, len(p.cfg.Endpoints))
	for name := range p.cfg.Endpoints {
		names = append(names, name)
	}
	slices.SortFunc(names, strings.Compare)
	return names
}

func (p *Provider) Transfer() models.TransferSettings {
	return p.cfg.Transfer
}
