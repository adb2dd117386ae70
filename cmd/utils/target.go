package utils

import (
	"bufio"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"

	"github.com/wentf9/mirrorup/pkg/models"
)

// ParseTarget 解析 [scheme://][user[:password]@]host[:port][/path],缺省协议为 ftp。
// file:///mnt/backup 表示本地目录。
func ParseTarget(input string) (models.Endpoint, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return models.Endpoint{}, fmt.Errorf("empty target")
	}
	if !strings.Contains(input, "://") {
		input = models.SchemeFTP + "://" + input
	}
	u, err := url.Parse(input)
	if err != nil {
		return models.Endpoint{}, fmt.Errorf("invalid target %q: %w", input, err)
	}

	ep := models.Endpoint{Scheme: strings.ToLower(u.Scheme)}
	switch ep.Scheme {
	case models.SchemeLocal:
		ep.RemotePath = u.Path
		if u.Host != "" {
			// file://relative/dir
			ep.RemotePath = u.Host + u.Path
		}
		if ep.RemotePath == "" {
			return ep, fmt.Errorf("target %q has no directory", input)
		}
		return ep, nil
	case "ftps":
		ep.Scheme = models.SchemeFTP
		ep.Encrypt = true
	case models.SchemeFTP, models.SchemeSFTP:
	default:
		return ep, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	ep.Host = u.Hostname()
	if ep.Host == "" {
		return ep, fmt.Errorf("target %q has no host", input)
	}
	if p := u.Port(); p != "" {
		if ep.Port = ParsePort(p); ep.Port == 0 {
			return ep, fmt.Errorf("invalid port %q", p)
		}
	}
	if u.User != nil {
		ep.User = u.User.Username()
		ep.Password, _ = u.User.Password()
	}
	ep.RemotePath = u.Path
	return ep, nil
}

// ReadTargetFile 每行一个端点名称或目标地址,忽略空行和 # 注释
func ReadTargetFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var targets []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		targets = append(targets, line)
	}
	return targets, scanner.Err()
}

// IsValidHost host 是 IP 或可以被解析的主机名
func IsValidHost(host string) bool {
	if net.ParseIP(host) != nil {
		return true
	}
	_, err := net.LookupHost(host)
	return err == nil
}
