package main

import (
	"fmt"
	"path/filepath"

	storageeng "github.com/roomworks/roomflow/engine/storage"
	storageengdiskv "github.com/roomworks/roomflow/engine/storage/diskv"
	storageenginmem "github.com/roomworks/roomflow/engine/storage/inmem"
	storageengmysql "github.com/roomworks/roomflow/engine/storage/mysql"
	storageasset "github.com/roomworks/roomflow/subsystem/asset/storage"
	storageassetdiskv "github.com/roomworks/roomflow/subsystem/asset/storage/diskv"
	storageassetinmem "github.com/roomworks/roomflow/subsystem/asset/storage/inmem"
	storageperm "github.com/roomworks/roomflow/subsystem/permission/storage"
	storagepermdiskv "github.com/roomworks/roomflow/subsystem/permission/storage/diskv"
	storageperminmem "github.com/roomworks/roomflow/subsystem/permission/storage/inmem"

	_ "github.com/go-sql-driver/mysql"
)

type storageConfig struct {
	engine     storageeng.AllStorage
	permission storageperm.Storage
	asset      storageasset.Storage
}

func parseStorage(name, dsn string) (*storageConfig, error) {
	switch name {
	case "inmem":
		return &storageConfig{
			engine:     storageenginmem.New(),
			permission: storageperminmem.New(),
			asset:      storageassetinmem.New(),
		}, nil
	case "file", "diskv":
		if dsn == "" {
			dsn = "db"
		}
		return &storageConfig{
			engine:     storageengdiskv.New(dsn),
			permission: storagepermdiskv.New(filepath.Join(dsn, "grant")),
			asset:      storageassetdiskv.New(filepath.Join(dsn, "blob")),
		}, nil
	case "mysql":
		eng, err := storageengmysql.New(storageengmysql.WithDSN(dsn))
		if err != nil {
			return nil, fmt.Errorf("creating mysql engine storage: %w", err)
		}
		// grants and asset blobs stay in memory; only the engine state
		// is backed by MySQL.
		return &storageConfig{
			engine:     eng,
			permission: storageperminmem.New(),
			asset:      storageassetinmem.New(),
		}, nil
	default:
		return nil, fmt.Errorf("unknown storage: %s", name)
	}
}
