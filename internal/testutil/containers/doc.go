// Package containers provides testcontainer management for integration tests.
//
// It starts a MySQL 8.0 container with the alerting schema migrated, so
// repository code can be exercised against the dialect production uses.
//
// Containers are typically managed using TestMain in integration test packages:
//
//	var mysqlContainer *containers.MySQLContainer
//
//	func TestMain(m *testing.M) {
//	    var err error
//	    mysqlContainer, err = containers.NewMySQLContainer(context.Background(), nil)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    code := m.Run()
//	    _ = mysqlContainer.Terminate(context.Background())
//	    os.Exit(code)
//	}
//
// Integration tests using this package should use the "integration" build tag:
//
//	//go:build integration
//
//	go test -tags=integration ./...
package containers
