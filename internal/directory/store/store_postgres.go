package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"diocese/internal/allocator"
	"diocese/internal/directory"
	"diocese/pkg/apperrors"
	txcontext "diocese/pkg/platform/tx"
)

// Postgres bundles the directory stores over one database handle. Every
// method joins an ambient transaction from context when one is present, so
// the transfer coordinator's atomic unit spans all of them.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type dbQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Postgres) querier(ctx context.Context) dbQuerier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Regions returns the RegionStore view.
func (s *Postgres) Regions() RegionStore { return (*pgRegions)(s) }

// Zones returns the ZoneStore view.
func (s *Postgres) Zones() ZoneStore { return (*pgZones)(s) }

// People returns the PersonStore view.
func (s *Postgres) People() PersonStore { return (*pgPeople)(s) }

// Departments returns the DepartmentStore view.
func (s *Postgres) Departments() DepartmentStore { return (*pgDepartments)(s) }

type pgRegions Postgres

func (s *pgRegions) Save(ctx context.Context, region directory.Region) error {
	query := `
		INSERT INTO regions (code, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := (*Postgres)(s).querier(ctx).ExecContext(ctx, query,
		region.Code, region.Name, region.CreatedAt, region.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert region: %w", err)
	}
	return nil
}

func (s *pgRegions) FindByCode(ctx context.Context, code string) (directory.Region, error) {
	var region directory.Region
	err := (*Postgres)(s).querier(ctx).QueryRowContext(ctx, `
		SELECT code, name, created_at, updated_at FROM regions WHERE code = $1
	`, code).Scan(&region.Code, &region.Name, &region.CreatedAt, &region.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return directory.Region{}, ErrNotFound
		}
		return directory.Region{}, fmt.Errorf("query region: %w", err)
	}
	return region, nil
}

func (s *pgRegions) List(ctx context.Context) ([]directory.Region, error) {
	rows, err := (*Postgres)(s).querier(ctx).QueryContext(ctx, `
		SELECT code, name, created_at, updated_at FROM regions ORDER BY code
	`)
	if err != nil {
		return nil, fmt.Errorf("query regions: %w", err)
	}
	defer rows.Close()

	var regions []directory.Region
	for rows.Next() {
		var region directory.Region
		if err := rows.Scan(&region.Code, &region.Name, &region.CreatedAt, &region.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan region: %w", err)
		}
		regions = append(regions, region)
	}
	return regions, rows.Err()
}

func (s *pgRegions) Update(ctx context.Context, region directory.Region) error {
	res, err := (*Postgres)(s).querier(ctx).ExecContext(ctx, `
		UPDATE regions SET name = $2, updated_at = $3 WHERE code = $1
	`, region.Code, region.Name, region.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update region: %w", err)
	}
	return requireRow(res)
}

func (s *pgRegions) Delete(ctx context.Context, code string) error {
	res, err := (*Postgres)(s).querier(ctx).ExecContext(ctx, `DELETE FROM regions WHERE code = $1`, code)
	if err != nil {
		return fmt.Errorf("delete region: %w", err)
	}
	return requireRow(res)
}

type pgZones Postgres

func (s *pgZones) Save(ctx context.Context, zone directory.Zone) error {
	query := `
		INSERT INTO zones (code, region_code, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := (*Postgres)(s).querier(ctx).ExecContext(ctx, query,
		zone.Code, zone.RegionCode, zone.Name, zone.CreatedAt, zone.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert zone: %w", err)
	}
	return nil
}

func (s *pgZones) FindByCode(ctx context.Context, code string) (directory.Zone, error) {
	var zone directory.Zone
	err := (*Postgres)(s).querier(ctx).QueryRowContext(ctx, `
		SELECT code, region_code, name, created_at, updated_at FROM zones WHERE code = $1
	`, code).Scan(&zone.Code, &zone.RegionCode, &zone.Name, &zone.CreatedAt, &zone.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return directory.Zone{}, ErrNotFound
		}
		return directory.Zone{}, fmt.Errorf("query zone: %w", err)
	}
	return zone, nil
}

func (s *pgZones) ListByRegion(ctx context.Context, regionCode string) ([]directory.Zone, error) {
	rows, err := (*Postgres)(s).querier(ctx).QueryContext(ctx, `
		SELECT code, region_code, name, created_at, updated_at
		FROM zones
		WHERE $1 = '' OR region_code = $1
		ORDER BY code
	`, regionCode)
	if err != nil {
		return nil, fmt.Errorf("query zones: %w", err)
	}
	defer rows.Close()

	var zones []directory.Zone
	for rows.Next() {
		var zone directory.Zone
		if err := rows.Scan(&zone.Code, &zone.RegionCode, &zone.Name, &zone.CreatedAt, &zone.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan zone: %w", err)
		}
		zones = append(zones, zone)
	}
	return zones, rows.Err()
}

func (s *pgZones) Update(ctx context.Context, zone directory.Zone) error {
	res, err := (*Postgres)(s).querier(ctx).ExecContext(ctx, `
		UPDATE zones SET name = $2, updated_at = $3 WHERE code = $1
	`, zone.Code, zone.Name, zone.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update zone: %w", err)
	}
	return requireRow(res)
}

func (s *pgZones) Delete(ctx context.Context, code string) error {
	res, err := (*Postgres)(s).querier(ctx).ExecContext(ctx, `DELETE FROM zones WHERE code = $1`, code)
	if err != nil {
		return fmt.Errorf("delete zone: %w", err)
	}
	return requireRow(res)
}

type pgPeople Postgres

const personColumns = `id, code, role, name, phone, email, zone_code, COALESCE(department_code, ''), version, created_at, updated_at`

func (s *pgPeople) Save(ctx context.Context, person directory.Person) error {
	query := `
		INSERT INTO people (id, code, role, name, phone, email, zone_code, department_code, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10, $11)
	`
	_, err := (*Postgres)(s).querier(ctx).ExecContext(ctx, query,
		person.ID, person.Code, string(person.Role), person.Name, person.Phone, person.Email,
		person.ZoneCode, person.DepartmentCode, person.Version, person.CreatedAt, person.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert person: %w", err)
	}
	return nil
}

func (s *pgPeople) FindByID(ctx context.Context, id uuid.UUID) (directory.Person, error) {
	row := (*Postgres)(s).querier(ctx).QueryRowContext(ctx,
		`SELECT `+personColumns+` FROM people WHERE id = $1`, id)
	return scanPerson(row)
}

func (s *pgPeople) FindByCode(ctx context.Context, code string) (directory.Person, error) {
	row := (*Postgres)(s).querier(ctx).QueryRowContext(ctx,
		`SELECT `+personColumns+` FROM people WHERE code = $1`, code)
	return scanPerson(row)
}

func (s *pgPeople) ListByZone(ctx context.Context, zoneCode string, role allocator.Role) ([]directory.Person, error) {
	rows, err := (*Postgres)(s).querier(ctx).QueryContext(ctx, `
		SELECT `+personColumns+`
		FROM people
		WHERE ($1 = '' OR zone_code = $1) AND ($2 = '' OR role = $2)
		ORDER BY code
	`, zoneCode, string(role))
	if err != nil {
		return nil, fmt.Errorf("query people: %w", err)
	}
	defer rows.Close()

	var people []directory.Person
	for rows.Next() {
		person, err := scanPerson(rows)
		if err != nil {
			return nil, err
		}
		people = append(people, person)
	}
	return people, rows.Err()
}

func (s *pgPeople) CountByZone(ctx context.Context, zoneCode string) (int, error) {
	var count int
	err := (*Postgres)(s).querier(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM people WHERE zone_code = $1`, zoneCode).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count people: %w", err)
	}
	return count, nil
}

func (s *pgPeople) CountByDepartment(ctx context.Context, departmentCode string) (int, error) {
	var count int
	err := (*Postgres)(s).querier(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM people WHERE department_code = $1`, departmentCode).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count people by department: %w", err)
	}
	return count, nil
}

func (s *pgPeople) Update(ctx context.Context, person directory.Person, expectedVersion int64) error {
	res, err := (*Postgres)(s).querier(ctx).ExecContext(ctx, `
		UPDATE people SET
			name = $2, phone = $3, email = $4,
			zone_code = $5, department_code = NULLIF($6, ''),
			version = version + 1, updated_at = $7
		WHERE code = $1 AND version = $8
	`, person.Code, person.Name, person.Phone, person.Email,
		person.ZoneCode, person.DepartmentCode, person.UpdatedAt, expectedVersion)
	if err != nil {
		return fmt.Errorf("update person: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update person: %w", err)
	}
	if affected == 0 {
		// Distinguish a missing row from a stale version.
		var current int64
		err := (*Postgres)(s).querier(ctx).QueryRowContext(ctx,
			`SELECT version FROM people WHERE code = $1`, person.Code).Scan(&current)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("check person version: %w", err)
		}
		return apperrors.Newf(apperrors.CodeConcurrentModification,
			"person %s is at version %d, expected %d", person.Code, current, expectedVersion)
	}
	return nil
}

func (s *pgPeople) Delete(ctx context.Context, code string) error {
	res, err := (*Postgres)(s).querier(ctx).ExecContext(ctx, `DELETE FROM people WHERE code = $1`, code)
	if err != nil {
		return fmt.Errorf("delete person: %w", err)
	}
	return requireRow(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPerson(row rowScanner) (directory.Person, error) {
	var (
		person directory.Person
		role   string
	)
	err := row.Scan(&person.ID, &person.Code, &role, &person.Name, &person.Phone, &person.Email,
		&person.ZoneCode, &person.DepartmentCode, &person.Version, &person.CreatedAt, &person.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return directory.Person{}, ErrNotFound
		}
		return directory.Person{}, fmt.Errorf("scan person: %w", err)
	}
	person.Role = allocator.Role(role)
	return person, nil
}

type pgDepartments Postgres

func (s *pgDepartments) Save(ctx context.Context, dept directory.Department) error {
	query := `
		INSERT INTO departments (code, zone_code, name, head_person_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := (*Postgres)(s).querier(ctx).ExecContext(ctx, query,
		dept.Code, dept.ZoneCode, dept.Name, dept.HeadPersonID, dept.CreatedAt, dept.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert department: %w", err)
	}
	return nil
}

func (s *pgDepartments) FindByCode(ctx context.Context, code string) (directory.Department, error) {
	var dept directory.Department
	err := (*Postgres)(s).querier(ctx).QueryRowContext(ctx, `
		SELECT code, zone_code, name, head_person_id, created_at, updated_at
		FROM departments WHERE code = $1
	`, code).Scan(&dept.Code, &dept.ZoneCode, &dept.Name, &dept.HeadPersonID, &dept.CreatedAt, &dept.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return directory.Department{}, ErrNotFound
		}
		return directory.Department{}, fmt.Errorf("query department: %w", err)
	}
	return dept, nil
}

func (s *pgDepartments) ListByZone(ctx context.Context, zoneCode string) ([]directory.Department, error) {
	rows, err := (*Postgres)(s).querier(ctx).QueryContext(ctx, `
		SELECT code, zone_code, name, head_person_id, created_at, updated_at
		FROM departments
		WHERE $1 = '' OR zone_code = $1
		ORDER BY code
	`, zoneCode)
	if err != nil {
		return nil, fmt.Errorf("query departments: %w", err)
	}
	defer rows.Close()

	var depts []directory.Department
	for rows.Next() {
		var dept directory.Department
		if err := rows.Scan(&dept.Code, &dept.ZoneCode, &dept.Name, &dept.HeadPersonID, &dept.CreatedAt, &dept.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan department: %w", err)
		}
		depts = append(depts, dept)
	}
	return depts, rows.Err()
}

func (s *pgDepartments) Update(ctx context.Context, dept directory.Department) error {
	res, err := (*Postgres)(s).querier(ctx).ExecContext(ctx, `
		UPDATE departments SET name = $2, updated_at = $3 WHERE code = $1
	`, dept.Code, dept.Name, dept.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update department: %w", err)
	}
	return requireRow(res)
}

func (s *pgDepartments) SetHead(ctx context.Context, code string, personID uuid.UUID) error {
	res, err := (*Postgres)(s).querier(ctx).ExecContext(ctx, `
		UPDATE departments SET head_person_id = $2, updated_at = now() WHERE code = $1
	`, code, personID)
	if err != nil {
		return fmt.Errorf("set department head: %w", err)
	}
	return requireRow(res)
}

func (s *pgDepartments) Delete(ctx context.Context, code string) error {
	res, err := (*Postgres)(s).querier(ctx).ExecContext(ctx, `DELETE FROM departments WHERE code = $1`, code)
	if err != nil {
		return fmt.Errorf("delete department: %w", err)
	}
	return requireRow(res)
}

// --- CodeIndex ---

func (s *Postgres) ParentExists(ctx context.Context, role allocator.Role, parentCode string) (bool, error) {
	var table string
	switch role {
	case allocator.RoleRegion:
		table = "regions"
	case allocator.RoleZone:
		table = "zones"
	default:
		return false, nil
	}
	var exists bool
	err := s.querier(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+table+` WHERE code = $1)`, parentCode).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check parent: %w", err)
	}
	return exists, nil
}

func (s *Postgres) ListCodes(ctx context.Context, scope allocator.Scope) ([]string, error) {
	var (
		query string
		args  []any
	)
	switch scope.Role {
	case allocator.RoleRegion:
		query = `SELECT code FROM regions`
	case allocator.RoleZone:
		query = `SELECT code FROM zones WHERE region_code = $1`
		args = append(args, scope.ParentCode)
	case allocator.RolePastor, allocator.RoleDeacon, allocator.RoleMember:
		query = `SELECT code FROM people WHERE zone_code = $1 AND role = $2`
		args = append(args, scope.ParentCode, string(scope.Role))
	case allocator.RoleDepartment:
		query = `SELECT code FROM departments WHERE zone_code = $1`
		args = append(args, scope.ParentCode)
	default:
		return nil, apperrors.Newf(apperrors.CodeValidation, "unknown role %q", scope.Role)
	}

	rows, err := s.querier(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query scope codes: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scan code: %w", err)
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

func requireRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
