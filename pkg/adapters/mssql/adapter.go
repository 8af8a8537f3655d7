package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/denisenkom/go-mssqldb" // MS SQL Server driver

	"github.com/ruslano69/ezsearch/pkg/adapters"
	"github.com/ruslano69/ezsearch/pkg/adapters/base"
)

// AdapterType is the factory identifier of the SQL Server adapter.
const AdapterType = "mssql"

const driverName = "sqlserver"

// Adapter implements the adapters.Adapter interface for Microsoft SQL Server.
type Adapter struct {
	*base.SQLClient

	// Version information
	serverVersion    int    // Major version: 11=2012, 13=2016, 14=2017, 15=2019, 16=2022
	serverVersionStr string // Full version string
}

var _ adapters.Adapter = (*Adapter)(nil)

func init() {
	// Register MS SQL Server adapter in factory
	adapters.Register(AdapterType, func() adapters.Adapter {
		return &Adapter{}
	})
}

// Connect implements adapters.Adapter interface.
// Connects to MS SQL Server and detects the server version.
func (a *Adapter) Connect(ctx context.Context, cfg adapters.Config) error {
	client, err := base.Open(ctx, driverName, AdapterType, base.BindAtP, cfg)
	if err != nil {
		return err
	}
	a.SQLClient = client.WithVersionQuery("SELECT @@VERSION")

	if err := a.detectVersion(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("failed to detect server version")
	}

	return nil
}

// detectVersion reads SERVERPROPERTY('ProductVersion') on a dedicated connection.
func (a *Adapter) detectVersion(ctx context.Context) error {
	return a.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		var version string
		if err := conn.QueryRowContext(ctx, "SELECT CAST(SERVERPROPERTY('ProductVersion') AS NVARCHAR(128))").Scan(&version); err != nil {
			return fmt.Errorf("failed to get server version: %w", err)
		}
		a.serverVersionStr = version
		a.serverVersion = parseServerVersion(version)
		return nil
	})
}

// parseServerVersion parses SQL Server version string to major version number.
// Examples:
//   - "11.0.2100.60" → 11 (SQL Server 2012)
//   - "13.0.5026.0"  → 13 (SQL Server 2016)
//   - "15.0.2000.5"  → 15 (SQL Server 2019)
func parseServerVersion(version string) int {
	parts := strings.Split(version, ".")
	if len(parts) == 0 {
		return 0
	}

	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0
	}

	return major
}

// ServerVersionName returns human-readable server version name.
func (a *Adapter) ServerVersionName() string {
	return serverVersionName(a.serverVersion)
}

func serverVersionName(major int) string {
	switch major {
	case 11:
		return "SQL Server 2012"
	case 12:
		return "SQL Server 2014"
	case 13:
		return "SQL Server 2016"
	case 14:
		return "SQL Server 2017"
	case 15:
		return "SQL Server 2019"
	case 16:
		return "SQL Server 2022"
	default:
		return fmt.Sprintf("SQL Server (version %d)", major)
	}
}

// Close implements adapters.Adapter interface.
func (a *Adapter) Close(ctx context.Context) error {
	if a.SQLClient == nil {
		return nil
	}
	return a.SQLClient.Close(ctx)
}

// GetDatabaseType implements adapters.Adapter interface.
func (a *Adapter) GetDatabaseType() string {
	return AdapterType
}
