/*
Copyright 2024 University of Stuttgart

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package catalog

import (
	"context"
	"database/sql"

	"github.com/gravitational/trace"
)

const serviceColumns = `id, service_id, url, name, description`

func scanService(row interface{ Scan(...interface{}) error }) (*Service, error) {
	var s Service
	if err := row.Scan(&s.ID, &s.ServiceID, &s.URL, &s.Name, &s.Description); err != nil {
		return nil, err
	}
	return &s, nil
}

// ListServices returns all service records ordered by service id.
func (c *Catalog) ListServices(ctx context.Context) ([]Service, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT `+serviceColumns+` FROM services ORDER BY service_id`)
	if err != nil {
		return nil, convertError(err)
	}
	defer rows.Close()
	var services []Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, trace.Wrap(err)
		}
		services = append(services, *s)
	}
	return services, trace.Wrap(rows.Err())
}

// GetService returns the service registered under the given service id.
func (c *Catalog) GetService(ctx context.Context, serviceID string) (*Service, error) {
	row := c.db.QueryRowContext(ctx,
		c.rebind(`SELECT `+serviceColumns+` FROM services WHERE service_id = ?`), serviceID)
	s, err := scanService(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, trace.NotFound("service %q does not exist", serviceID)
		}
		return nil, convertError(err)
	}
	return s, nil
}

// CreateService stores a new service record. Duplicate service ids yield
// AlreadyExists.
func (c *Catalog) CreateService(ctx context.Context, s Service) (*Service, error) {
	if s.ServiceID == "" {
		return nil, trace.BadParameter("serviceId must not be empty")
	}
	if s.URL == "" {
		return nil, trace.BadParameter("service url must not be empty")
	}
	err := c.inTransaction(ctx, func(tx *sql.Tx) error {
		var existing int64
		row := tx.QueryRowContext(ctx,
			c.rebind(`SELECT id FROM services WHERE service_id = ?`), s.ServiceID)
		if err := row.Scan(&existing); err == nil {
			return trace.AlreadyExists("a service with id %q already exists", s.ServiceID)
		} else if err != sql.ErrNoRows {
			return convertError(err)
		}
		id, err := insertRow(ctx, tx, c,
			`INSERT INTO services (service_id, url, name, description) VALUES (?, ?, ?, ?)`,
			s.ServiceID, s.URL, s.Name, s.Description)
		s.ID = id
		return trace.Wrap(err)
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return &s, nil
}

// UpsertService creates or updates the record stored under s.ServiceID.
func (c *Catalog) UpsertService(ctx context.Context, s Service) (*Service, error) {
	if s.ServiceID == "" {
		return nil, trace.BadParameter("serviceId must not be empty")
	}
	err := c.inTransaction(ctx, func(tx *sql.Tx) error {
		var existing int64
		row := tx.QueryRowContext(ctx,
			c.rebind(`SELECT id FROM services WHERE service_id = ?`), s.ServiceID)
		err := row.Scan(&existing)
		switch {
		case err == sql.ErrNoRows:
			id, err := insertRow(ctx, tx, c,
				`INSERT INTO services (service_id, url, name, description) VALUES (?, ?, ?, ?)`,
				s.ServiceID, s.URL, s.Name, s.Description)
			s.ID = id
			return trace.Wrap(err)
		case err != nil:
			return convertError(err)
		default:
			s.ID = existing
			_, err := tx.ExecContext(ctx, c.rebind(
				`UPDATE services SET url = ?, name = ?, description = ? WHERE id = ?`),
				s.URL, s.Name, s.Description, existing)
			return convertError(err)
		}
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return &s, nil
}

// DeleteService removes a service record. Idempotent.
func (c *Catalog) DeleteService(ctx context.Context, serviceID string) error {
	return trace.Wrap(c.inTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			c.rebind(`DELETE FROM services WHERE service_id = ?`), serviceID)
		return convertError(err)
	}))
}
