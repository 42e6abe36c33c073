package testtool

import (
	"context"
	"fmt"
	"strings"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// SetupContainer 通用函式來啟動測試容器
func SetupContainer(ctx context.Context, req testcontainers.ContainerRequest) (testcontainers.Container, string, string, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, "", "", err
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, "", "", err
	}

	// ExposedPorts[0] 形如 "27017/tcp"
	natPort, err := nat.NewPort("tcp", strings.TrimSuffix(req.ExposedPorts[0], "/tcp"))
	if err != nil {
		return nil, "", "", err
	}

	port, err := container.MappedPort(ctx, natPort)
	if err != nil {
		return nil, "", "", err
	}

	return container, host, port.Port(), nil
}

// StartMongo mongo 容器, 回傳連線字串
func StartMongo(ctx context.Context) (testcontainers.Container, string, error) {
	c, host, port, err := SetupContainer(ctx, testcontainers.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForListeningPort("27017/tcp"),
	})
	if err != nil {
		return nil, "", err
	}
	return c, fmt.Sprintf("mongodb://%s:%s", host, port), nil
}

// StartRedis redis 容器, 回傳 host:port
func StartRedis(ctx context.Context) (testcontainers.Container, string, error) {
	c, host, port, err := SetupContainer(ctx, testcontainers.ContainerRequest{
		Image:        "redis:7",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	})
	if err != nil {
		return nil, "", err
	}
	return c, host + ":" + port, nil
}

// StartPostgres postgres 容器, 回傳連線字串
func StartPostgres(ctx context.Context) (testcontainers.Container, string, error) {
	c, host, port, err := SetupContainer(ctx, testcontainers.ContainerRequest{
		Image:        "postgres:15",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "chat_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	})
	if err != nil {
		return nil, "", err
	}
	return c, fmt.Sprintf("postgres://test:test@%s:%s/chat_test?sslmode=disable", host, port), nil
}

// StartMinIO minio 容器, 回傳 endpoint
func StartMinIO(ctx context.Context) (testcontainers.Container, string, error) {
	c, host, port, err := SetupContainer(ctx, testcontainers.ContainerRequest{
		Image:        "minio/minio:latest",
		ExposedPorts: []string{"9000/tcp"},
		Env: map[string]string{
			"MINIO_ROOT_USER":     "minioadmin",
			"MINIO_ROOT_PASSWORD": "minioadmin",
		},
		Cmd:        []string{"server", "/data"},
		WaitingFor: wait.ForHTTP("/minio/health/live").WithPort("9000/tcp"),
	})
	if err != nil {
		return nil, "", err
	}
	return c, host + ":" + port, nil
}
