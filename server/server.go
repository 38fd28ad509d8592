package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang/glog"

	"github.com/hb9tf/sweeper/export"
	"github.com/hb9tf/sweeper/metrics"
	"github.com/hb9tf/sweeper/sdr"
)

var (
	listen   = flag.String("listen", ":8443", "")
	certFile = flag.String("certFile", "", "Path of the file containing the certificate (including the chained intermediates and root) for the TLS connection.")
	keyFile  = flag.String("keyFile", "", "Path of the file containing the key for the TLS connection.")
	output   = flag.String("output", "", "Export mechanism to use (one of: csv, sqlite, mysql)")

	// SQLite
	sqliteFile = flag.String("sqliteFile", "/tmp/sweeper.db", "File path of the sqlite DB file to use.")

	// MySQL
	mysqlServer       = flag.String("mysqlServer", "127.0.0.1:3306", "MySQL TCP server endpoint to connect to (IP/DNS and port).")
	mysqlUser         = flag.String("mysqlUser", "", "MySQL DB user.")
	mysqlPasswordFile = flag.String("mysqlPasswordFile", "", "Path to the file containing the password for the MySQL user.")
	mysqlDBName       = flag.String("mysqlDBName", "spectre", "Name of the DB to use.")
)

const samplesEndpoint = "/spectre/v1/samples"

type collectServer struct {
	samples chan<- sdr.Sample
	// store is nil when the exporter cannot be queried.
	store *export.SQL
}

func (s *collectServer) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.POST(export.CollectEndpoint, s.collect)
	r.GET(samplesEndpoint, s.query)
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return r
}

func (s *collectServer) collect(c *gin.Context) {
	samples := []sdr.Sample{}
	if err := c.ShouldBindJSON(&samples); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
		return
	}
	for _, sample := range samples {
		select {
		case s.samples <- sample:
		case <-c.Request.Context().Done():
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "error": "request cancelled"})
			return
		}
	}
	c.JSON(http.StatusOK, export.CollectResponse{Status: "ok", SampleCount: len(samples)})
}

func (s *collectServer) query(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"status": "error", "error": "output does not support queries"})
		return
	}
	q, err := parseQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
		return
	}
	samples, err := s.store.Read(c.Request.Context(), q)
	if err != nil {
		glog.Warningf("unable to query samples: %s\n", err)
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, samples)
}

func parseQuery(c *gin.Context) (export.Query, error) {
	var q export.Query
	var err error
	if v := c.Query("low"); v != "" {
		if q.FreqLow, err = strconv.ParseUint(v, 10, 64); err != nil {
			return q, errors.New("low must be a frequency in Hz")
		}
	}
	if v := c.Query("high"); v != "" {
		if q.FreqHigh, err = strconv.ParseUint(v, 10, 64); err != nil {
			return q, errors.New("high must be a frequency in Hz")
		}
	}
	if v := c.Query("since"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return q, errors.New("since must be a duration")
		}
		q.Start = time.Now().Add(-d)
	}
	if v := c.Query("limit"); v != "" {
		if q.Limit, err = strconv.Atoi(v); err != nil {
			return q, errors.New("limit must be a number")
		}
	}
	return q, nil
}

func main() {
	ctx := context.Background()
	// Set defaults for glog flags. Can be overridden via cmdline.
	flag.Set("logtostderr", "false")
	flag.Set("stderrthreshold", "WARNING")
	flag.Set("v", "1")
	// Parse flags globally.
	flag.Parse()
	defer glog.Flush()

	m := metrics.New(nil)

	// Exporter setup
	var exporter export.Exporter
	var store *export.SQL
	var db *sql.DB
	var err error
	switch strings.ToLower(*output) {
	case "csv":
		exporter = &export.CSV{Metrics: m}
	case "sqlite":
		if db, err = export.OpenSQLite(*sqliteFile); err != nil {
			glog.Exit(err)
		}
		store = &export.SQL{DB: db, Dialect: export.SQLiteDialect, Metrics: m}
	case "mysql":
		db, err = export.OpenMySQL(export.MySQLOptions{
			Server:       *mysqlServer,
			User:         *mysqlUser,
			PasswordFile: *mysqlPasswordFile,
			DBName:       *mysqlDBName,
		})
		if err != nil {
			glog.Exit(err)
		}
		store = &export.SQL{DB: db, Dialect: export.MySQLDialect, Metrics: m}
	default:
		glog.Exitf("%q is not a supported export method, pick one of: csv, sqlite, mysql", *output)
	}
	if store != nil {
		defer db.Close()
		if err := store.Init(ctx); err != nil {
			glog.Exit(err)
		}
		exporter = store
	}

	// Export samples.
	samples := make(chan sdr.Sample, 1000)
	go func() {
		if err := exporter.Write(ctx, samples); err != nil {
			glog.Fatal(err)
		}
	}()

	// Configure and run webserver.
	gin.SetMode(gin.ReleaseMode)
	s := &collectServer{samples: samples, store: store}
	router := s.router()
	router.GET("/metrics", gin.WrapH(metrics.Handler(nil)))
	server := &http.Server{
		Addr:    *listen,
		Handler: router,
	}
	if *certFile != "" || *keyFile != "" {
		glog.Fatal(server.ListenAndServeTLS(*certFile, *keyFile))
	} else {
		glog.Infoln("Resorting to serving HTTP because there was no certificate and key defined.")
		glog.Fatal(server.ListenAndServe())
	}
}
