// Package all registers every dataset adapter.
package all

import (
	// Import all the adapters so they register themselves
	_ "github.com/darianmavgo/unifysql/converters/aclsql"
	_ "github.com/darianmavgo/unifysql/converters/fiben"
	_ "github.com/darianmavgo/unifysql/converters/paraphrase"
	_ "github.com/darianmavgo/unifysql/converters/sede"
	_ "github.com/darianmavgo/unifysql/converters/seoss"
	_ "github.com/darianmavgo/unifysql/converters/sparc"
	_ "github.com/darianmavgo/unifysql/converters/spider"
	_ "github.com/darianmavgo/unifysql/converters/squall"
	_ "github.com/darianmavgo/unifysql/converters/wikisql"
	_ "github.com/darianmavgo/unifysql/converters/xsp"
)
