// Package testdb provides helpers for tests that run against a real
// PostgreSQL database.
//
// Tests call GetTestDBWithT, which skips the test when no database URL is
// configured, and otherwise returns a migrated connection that is closed
// when the test ends. WithTx runs a function inside a transaction that is
// always rolled back, so tests that only need request-store access leave no
// data behind:
//
//	func TestSomething(t *testing.T) {
//	    db := testdb.GetTestDBWithT(t)
//	    testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
//	        s := postgres.NewPostgresRequestStore(db, logger).WithTx(tx)
//	        // ...
//	    })
//	}
//
// The database URL is read from DATABASE_URL, then IMGBATCH_TEST_DB_URL.
package testdb
