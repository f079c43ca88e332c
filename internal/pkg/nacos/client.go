// Package nacos 封装 Nacos 的服务注册和配置拉取。
package nacos

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/nacos-group/nacos-sdk-go/v2/clients"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/config_client"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/naming_client"
	"github.com/nacos-group/nacos-sdk-go/v2/common/constant"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"

	"promoindex/internal/pkg/logger"
)

// Client 封装了 Nacos 命名客户端和配置客户端
type Client struct {
	namingClient naming_client.INamingClient
	configClient config_client.IConfigClient

	namespaceID string
	groupName   string
}

// NewNacosClient 创建客户端，addrs 格式为 "ip1:port1,ip2:port2"
func NewNacosClient(addrs, namespaceID, groupName string) (*Client, error) {
	ctx := context.Background()
	if namespaceID == "" {
		logger.Ctx(ctx).Warn().Msg("nacos namespace is not set, using public namespace")
	}
	if groupName == "" {
		groupName = "DEFAULT_GROUP"
	}

	serverConfigs, err := ParseServerConfigs(addrs)
	if err != nil {
		return nil, err
	}
	clientConfig := *constant.NewClientConfig(
		constant.WithNotLoadCacheAtStart(true),
		constant.WithLogDir("/tmp/nacos/log"),
		constant.WithCacheDir("/tmp/nacos/cache"),
		constant.WithLogLevel("warn"),
		constant.WithNamespaceId(namespaceID),
	)
	param := vo.NacosClientParam{ClientConfig: &clientConfig, ServerConfigs: serverConfigs}

	namingClient, err := clients.NewNamingClient(param)
	if err != nil {
		return nil, fmt.Errorf("failed to create nacos naming client: %w", err)
	}
	configClient, err := clients.NewConfigClient(param)
	if err != nil {
		namingClient.CloseClient()
		return nil, fmt.Errorf("failed to create nacos config client: %w", err)
	}

	logger.Ctx(ctx).Info().Str("addrs", addrs).Str("group", groupName).Msg("connected to nacos")
	return &Client{
		namingClient: namingClient,
		configClient: configClient,
		namespaceID:  namespaceID,
		groupName:    groupName,
	}, nil
}

// ParseServerConfigs 解析 "ip:port" 列表。
func ParseServerConfigs(addrs string) ([]constant.ServerConfig, error) {
	var serverConfigs []constant.ServerConfig
	for _, addr := range strings.Split(addrs, ",") {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		host, portStr, ok := strings.Cut(addr, ":")
		if !ok || host == "" {
			return nil, fmt.Errorf("invalid nacos address format: %s", addr)
		}
		port, err := strconv.ParseUint(portStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid port in nacos address: %s", portStr)
		}
		serverConfigs = append(serverConfigs, *constant.NewServerConfig(host, port))
	}
	if len(serverConfigs) == 0 {
		return nil, fmt.Errorf("no nacos server address configured")
	}
	return serverConfigs, nil
}

// RegisterServiceInstance 注册一个临时实例，心跳断开后自动摘除
func (c *Client) RegisterServiceInstance(serviceName, ip string, port int) error {
	success, err := c.namingClient.RegisterInstance(vo.RegisterInstanceParam{
		Ip:          ip,
		Port:        uint64(port),
		ServiceName: serviceName,
		Weight:      10,
		Enable:      true,
		Healthy:     true,
		Ephemeral:   true,
		GroupName:   c.groupName,
	})
	if err != nil {
		return fmt.Errorf("failed to register service with nacos: %w", err)
	}
	if !success {
		return fmt.Errorf("nacos registration was not successful for service: %s", serviceName)
	}
	logger.Ctx(context.Background()).Info().
		Str("service", serviceName).
		Str("ip", ip).
		Int("port", port).
		Msg("service registered to nacos")
	return nil
}

// DeregisterServiceInstance 从 Nacos 注销实例
func (c *Client) DeregisterServiceInstance(serviceName, ip string, port int) error {
	_, err := c.namingClient.DeregisterInstance(vo.DeregisterInstanceParam{
		Ip:          ip,
		Port:        uint64(port),
		ServiceName: serviceName,
		Ephemeral:   true,
		GroupName:   c.groupName,
	})
	if err != nil {
		return fmt.Errorf("failed to deregister service with nacos: %w", err)
	}
	return nil
}

// GetConfig 拉取 dataID 在当前分组下的配置内容
func (c *Client) GetConfig(dataID string) (string, error) {
	content, err := c.configClient.GetConfig(vo.ConfigParam{DataId: dataID, Group: c.groupName})
	if err != nil {
		return "", fmt.Errorf("failed to get nacos config %s: %w", dataID, err)
	}
	return content, nil
}

// Close 关闭两个客户端
func (c *Client) Close() {
	if c.configClient != nil {
		c.configClient.CloseClient()
	}
	if c.namingClient != nil {
		c.namingClient.CloseClient()
	}
}
