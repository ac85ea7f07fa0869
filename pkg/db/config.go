package db

// Config selects the database dialect and pool limits. Type is one of
// postgres, mysql or sqlite; Path is only read for sqlite and names the
// on-disk file for single-terminal installs.
type Config struct {
	Type            string
	Host            string
	Port            string
	Name            string
	User            string
	Password        string
	SSLMode         string
	Path            string
	MaxIdleConn     int
	MaxOpenConn     int
	ConnMaxLifetime int
	ConnMaxIdleTime int
}
