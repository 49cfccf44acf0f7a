package http

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"

	"github.com/qist/camgate/config"
	"github.com/qist/camgate/logger"
)

const (
	maxRedirects = 5 // 快照地址最大重定向次数
)

// NewHTTPClient 按配置的超时创建拉取快照用的客户端
func NewHTTPClient(c *config.Config, transport *http.Transport) *http.Client {
	if transport == nil {
		insecure := c.HTTP.InsecureSkipVerify != nil && *c.HTTP.InsecureSkipVerify
		transport = &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   c.HTTP.ConnectTimeout,
				KeepAlive: c.HTTP.KeepAlive,
			}).DialContext,
			ResponseHeaderTimeout: c.HTTP.ResponseHeaderTimeout,
			TLSClientConfig:       &tls.Config{InsecureSkipVerify: insecure},
			IdleConnTimeout:       c.HTTP.IdleConnTimeout,
			MaxIdleConnsPerHost:   c.HTTP.MaxIdleConnsPerHost,
		}
	}

	return &http.Client{
		Timeout:   c.HTTP.Timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("超出最大重定向次数 (%d 次)", maxRedirects)
			}
			logger.Debugf("从 %s 重定向到 %s", via[len(via)-1].URL, req.URL)
			return nil
		},
	}
}
