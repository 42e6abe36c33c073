package repository

import (
	"context"
	"testing"

	"chat_room_client/pkg/database"
	"chat_room_client/pkg/logger"
	testtool "chat_room_client/pkg/test_tool"

	"github.com/stretchr/testify/require"
)

// setupMinIO 啟動 minio 容器, docker 不可用時略過
func setupMinIO(ctx context.Context, t *testing.T) (*database.MinIOClient, func()) {
	t.Helper()
	logger.SetNewNop()

	container, endpoint, err := testtool.StartMinIO(ctx)
	if err != nil {
		t.Skipf("minio container unavailable: %v", err)
	}

	client, err := database.NewMinIOConnection(database.MinIOConnection{
		Endpoint:      endpoint,
		User:          "minioadmin",
		Password:      "minioadmin",
		BucketName:    "chat-test",
		RetryCount:    5,
		RetryInterval: 1,
	})
	require.NoError(t, err)

	return client, func() { _ = container.Terminate(context.Background()) }
}
