// Package pg implements connstore.Store backed by Postgres, using
// parameterized CRUD queries and a soft-delete for removal.
package pg

import (
	"database/sql"
	"fmt"

	"github.com/nextlevelbuilder/jobrunner/internal/connstore"
	"github.com/nextlevelbuilder/jobrunner/internal/crypto"
	"github.com/nextlevelbuilder/jobrunner/internal/jobstore"
)

type Store struct {
	db            *sql.DB
	encryptionKey string
}

func New(db *sql.DB, encryptionKey string) *Store {
	return &Store{db: db, encryptionKey: encryptionKey}
}

const connCols = `connection_id, name, server_name, port, database_name, trusted_connection, username, password, description, driver, connection_timeout, command_timeout, encrypt, trust_server_certificate, is_active`

func scanConn(row interface{ Scan(...any) error }) (*connstore.Connection, error) {
	var c connstore.Connection
	var server, db, username, desc sql.NullString
	var port sql.NullInt64
	if err := row.Scan(&c.ID, &c.Name, &server, &port, &db, &c.TrustedConnection, &username, &c.Password, &desc,
		&c.Driver, &c.ConnectionTimeout, &c.CommandTimeout, &c.Encrypt, &c.TrustServerCertificate, &c.IsActive); err != nil {
		return nil, err
	}
	c.ServerName, c.DatabaseName, c.Username, c.Description = server.String, db.String, username.String, desc.String
	c.Port = int(port.Int64)
	return &c, nil
}

func (s *Store) Create(c *connstore.Connection) (string, error) {
	enc, err := crypto.Encrypt(c.Password, s.encryptionKey)
	if err != nil {
		return "", fmt.Errorf("encrypt password: %w", err)
	}
	c.ID = jobstore.NewID("conn")
	c.IsActive = true
	_, err = s.db.Exec(
		`INSERT INTO user_connections (connection_id, name, server_name, port, database_name, trusted_connection, username, password, description, driver, connection_timeout, command_timeout, encrypt, trust_server_certificate, is_active)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		c.ID, c.Name, c.ServerName, c.Port, c.DatabaseName, c.TrustedConnection, c.Username, enc, c.Description,
		c.Driver, c.ConnectionTimeout, c.CommandTimeout, c.Encrypt, c.TrustServerCertificate, c.IsActive,
	)
	if err != nil {
		return "", fmt.Errorf("insert connection: %w", err)
	}
	return c.ID, nil
}

func (s *Store) Get(name string) (*connstore.Connection, error) {
	row := s.db.QueryRow(`SELECT `+connCols+` FROM user_connections WHERE name = $1 AND is_active = true`, name)
	c, err := scanConn(row)
	if err != nil {
		return nil, fmt.Errorf("connection %q not found or inactive: %w", name, err)
	}
	return s.decrypted(c)
}

func (s *Store) GetByID(id string) (*connstore.Connection, error) {
	row := s.db.QueryRow(`SELECT `+connCols+` FROM user_connections WHERE connection_id = $1`, id)
	c, err := scanConn(row)
	if err != nil {
		return nil, fmt.Errorf("connection %q not found: %w", id, err)
	}
	return s.decrypted(c)
}

func (s *Store) decrypted(c *connstore.Connection) (*connstore.Connection, error) {
	plain, err := crypto.Decrypt(c.Password, s.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("decrypt password: %w", err)
	}
	c.Password = plain
	return c, nil
}

func (s *Store) List() ([]*connstore.Connection, error) {
	rows, err := s.db.Query(`SELECT ` + connCols + ` FROM user_connections ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer rows.Close()

	var out []*connstore.Connection
	for rows.Next() {
		c, err := scanConn(rows)
		if err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		c.Password = ""
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) Update(id string, c *connstore.Connection) error {
	if c.Password != "" {
		enc, err := crypto.Encrypt(c.Password, s.encryptionKey)
		if err != nil {
			return fmt.Errorf("encrypt password: %w", err)
		}
		c.Password = enc
		_, err = s.db.Exec(
			`UPDATE user_connections SET name=$1, server_name=$2, port=$3, database_name=$4, trusted_connection=$5, username=$6, password=$7, description=$8, driver=$9, connection_timeout=$10, command_timeout=$11, encrypt=$12, trust_server_certificate=$13 WHERE connection_id=$14`,
			c.Name, c.ServerName, c.Port, c.DatabaseName, c.TrustedConnection, c.Username, c.Password, c.Description,
			c.Driver, c.ConnectionTimeout, c.CommandTimeout, c.Encrypt, c.TrustServerCertificate, id,
		)
		return err
	}
	_, err := s.db.Exec(
		`UPDATE user_connections SET name=$1, server_name=$2, port=$3, database_name=$4, trusted_connection=$5, username=$6, description=$7, driver=$8, connection_timeout=$9, command_timeout=$10, encrypt=$11, trust_server_certificate=$12 WHERE connection_id=$13`,
		c.Name, c.ServerName, c.Port, c.DatabaseName, c.TrustedConnection, c.Username, c.Description,
		c.Driver, c.ConnectionTimeout, c.CommandTimeout, c.Encrypt, c.TrustServerCertificate, id,
	)
	return err
}

func (s *Store) Delete(id string) error {
	_, err := s.db.Exec(`UPDATE user_connections SET is_active = false WHERE connection_id = $1`, id)
	return err
}
