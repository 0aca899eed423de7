package storage

import "panel-server-go/internal/platform/storage/migrations"

func registeredForTest() []Migration {
	return []Migration{&migrations.Migration001Initial{}, &migrations.Migration002AdminCredentials{}}
}
