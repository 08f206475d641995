package config

import (
	"fmt"
	"os"
)

// WriteDefault writes a commented example INI file to path, the same role
// the source's Config::makeConfig() plays for a first-run operator.
func WriteDefault(path string) error {
	const example = `; candlewatch configuration

[DATABASE]
Driver=postgres
DataBase=candlewatch
UID=candlewatch
PWD=changeme
ConnectionOptions=disable
Port=5432
Host=localhost

[SYSTEM]
DebugMode=false
LogTableName=log
LogLevel=info

[SERVER]
Address=0.0.0.0
Port=8080
MaxUsers=1000
RootDir=
Name=candlewatch

; sparse, 0-indexed; omit sections you do not need
[PROXY_0]
Host=
Port=0
User=
Password=

[STOCK_EXCHANGE_0]
Type=BINANCE
User=
Password=
KLineTypes=1m,5m,1h
KLineNames=

[STOCK_EXCHANGE_1]
Type=MOEX
User=
Password=
KLineTypes=1m,1h,1d
KLineNames=
`
	if err := os.WriteFile(path, []byte(example), 0644); err != nil {
		return fmt.Errorf("config: write default config to %s: %w", path, err)
	}
	return nil
}
