package storage

func InitCache(dbConnStr string) (*PostgresCache, error) {
	store, err := NewPostgresCache(dbConnStr)
	if err != nil {
		return nil, err
	}
	return store, nil
}
