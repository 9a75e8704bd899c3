package repository

// Option applies a configuration option to the SQLStore.
type Option func(*SQLStore)

// WithPublisher announces committed changes on p.
func WithPublisher(p ChangePublisher) Option {
	return func(s *SQLStore) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithMaxOpenConns caps the connection pool. SQLite always uses one connection.
func WithMaxOpenConns(n int) Option {
	return func(s *SQLStore) {
		if n > 0 {
			s.maxOpenConns = n
		}
	}
}
