package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"nach-reprocessing/internal/config"
	"nach-reprocessing/internal/report"
	"nach-reprocessing/internal/server"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/xuri/excelize/v2"
)

const sampleFileName = "ACH-DR-BDBL-03062024-TPZ000433633-P3FC-INW.txt"

var sampleFile = strings.Join([]string{
	"TXN_REF_NO|MANDATE_ID|ACCOUNT_NO|AMOUNT|CUSTOMER_NAME|SPONSOR_BANK|DEST_BANK|TXN_DATE|PURPOSE",
	"REF0000000001|MANDATE000000000001|2030000001569|5000.00|Jane Doe|BDBL0001|SBIN0002|2024-06-03|LOAN",
	"REF0000000002|MANDATE000000000002|2030000001570|1200.50|John Roe",
	"REF0000000003||2030000001571|250.00|No Mandate",
	"REF0000000004|MANDATE000000000004|12345|75.00|Short Account",
	"this line is not a record",
}, "\n")

type IntegrationTestSuite struct {
	suite.Suite
	postgresContainer testcontainers.Container
	serverInstance    *server.Server
	db                *sql.DB
	baseURL           string
	client            *http.Client
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details string `json:"details"`
	} `json:"error"`
}

type txnJSON struct {
	ID        int64   `json:"id"`
	TxnRefNo  string  `json:"txn_ref_no"`
	Status    string  `json:"status"`
	ErrorCode *string `json:"error_code"`
	ErrorInfo *struct {
		Code string `json:"error_code"`
	} `json:"error_info"`
}

type pageJSON struct {
	Items      []txnJSON `json:"items"`
	TotalRows  int64     `json:"total_rows"`
	TotalPages int       `json:"total_pages"`
}

type reprocessJSON struct {
	SuccessCount int `json:"success_count"`
	FailedCount  int `json:"failed_count"`
	SkippedCount int `json:"skipped_count"`
	TotalCount   int `json:"total_count"`
}

func (suite *IntegrationTestSuite) SetupSuite() {
	ctx := context.Background()

	containerReq := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "nach",
			"POSTGRES_USER":     "postgres",
			"POSTGRES_PASSWORD": "password",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(30 * time.Second),
	}

	postgresContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: containerReq,
		Started:          true,
	})
	if err != nil {
		suite.T().Fatalf("Failed to start postgres container: %s", err)
	}
	suite.postgresContainer = postgresContainer

	host, err := postgresContainer.Host(ctx)
	if err != nil {
		suite.T().Fatalf("Failed to get container host: %s", err)
	}
	port, err := postgresContainer.MappedPort(ctx, "5432")
	if err != nil {
		suite.T().Fatalf("Failed to get mapped port: %s", err)
	}

	// Schema is applied by the server on start.
	cfg := config.Default()
	cfg.DBHost = host
	cfg.DBPort = port.Port()
	cfg.DBName = "nach"
	cfg.ServerPort = "0"

	serverInstance, serverPort, err := server.StartServer(cfg)
	if err != nil {
		suite.T().Fatalf("Failed to start application server: %s", err)
	}
	suite.serverInstance = serverInstance
	suite.baseURL = "http://localhost:" + serverPort
	suite.client = &http.Client{Timeout: 30 * time.Second}

	if err := suite.waitForServerReady(); err != nil {
		suite.T().Fatal(err)
	}

	suite.db, err = sql.Open("postgres", cfg.GetDBConnectionString())
	suite.Require().NoError(err)
}

func (suite *IntegrationTestSuite) SetupTest() {
	_, err := suite.db.Exec(`TRUNCATE nach_reprocess_audit, nach_transactions, nach_file_uploads RESTART IDENTITY CASCADE`)
	suite.Require().NoError(err)
}

func (suite *IntegrationTestSuite) waitForServerReady() error {
	timeout := 30 * time.Second
	start := time.Now()

	for time.Since(start) < timeout {
		resp, err := http.Get(suite.baseURL + "/health")
		if err == nil && resp.StatusCode == http.StatusOK {
			resp.Body.Close()
			return nil
		}
		if resp != nil {
			resp.Body.Close()
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("server not ready after %v", timeout)
}

func (suite *IntegrationTestSuite) TearDownSuite() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if suite.db != nil {
		suite.db.Close()
	}
	if suite.serverInstance != nil {
		suite.serverInstance.Stop(ctx)
	}
	if suite.postgresContainer != nil {
		testcontainers.TerminateContainer(suite.postgresContainer)
	}
}

func (suite *IntegrationTestSuite) upload(name, content string) (int, envelope) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	suite.Require().NoError(err)
	_, err = io.WriteString(fw, content)
	suite.Require().NoError(err)
	suite.Require().NoError(mw.Close())

	resp, err := suite.client.Post(suite.baseURL+"/api/nach/upload", mw.FormDataContentType(), &buf)
	suite.Require().NoError(err)
	return suite.decode(resp)
}

func (suite *IntegrationTestSuite) get(path string) (int, envelope) {
	resp, err := suite.client.Get(suite.baseURL + path)
	suite.Require().NoError(err)
	return suite.decode(resp)
}

func (suite *IntegrationTestSuite) reprocess(ids []int64) (int, envelope) {
	body, err := json.Marshal(map[string]interface{}{"transactionIds": ids, "actor": "integration"})
	suite.Require().NoError(err)
	resp, err := suite.client.Post(suite.baseURL+"/api/nach/reprocess", "application/json", bytes.NewReader(body))
	suite.Require().NoError(err)
	return suite.decode(resp)
}

func (suite *IntegrationTestSuite) decode(resp *http.Response) (int, envelope) {
	defer resp.Body.Close()
	var env envelope
	suite.Require().NoError(json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func (suite *IntegrationTestSuite) byRef(ref string) txnJSON {
	status, env := suite.get("/api/nach/transactions?reference=" + ref)
	suite.Require().Equal(http.StatusOK, status)
	var page pageJSON
	suite.Require().NoError(json.Unmarshal(env.Data, &page))
	suite.Require().Len(page.Items, 1)
	return page.Items[0]
}

func (suite *IntegrationTestSuite) TestNachFlow() {
	status, env := suite.upload(sampleFileName, sampleFile)
	suite.Require().Equal(http.StatusOK, status, "upload: %+v", env.Error)

	var up struct {
		FileType         string `json:"file_type"`
		BatchNo          string `json:"batch_no"`
		TransactionCount int    `json:"transaction_count"`
		SuccessCount     int    `json:"success_count"`
		ParseErrorCount  int    `json:"parse_error_count"`
		DuplicateCount   int    `json:"duplicate_count"`
	}
	suite.Require().NoError(json.Unmarshal(env.Data, &up))
	assert.Equal(suite.T(), "DR", up.FileType)
	assert.Equal(suite.T(), "TPZ000433633", up.BatchNo)
	assert.Equal(suite.T(), 5, up.TransactionCount)
	assert.Equal(suite.T(), 4, up.SuccessCount)
	assert.Equal(suite.T(), 1, up.ParseErrorCount)

	status, env = suite.get("/api/nach/transactions?pageSize=2")
	suite.Require().Equal(http.StatusOK, status)
	var page pageJSON
	suite.Require().NoError(json.Unmarshal(env.Data, &page))
	assert.Equal(suite.T(), int64(4), page.TotalRows, "parse errors are not stored")
	assert.Equal(suite.T(), 2, page.TotalPages)
	assert.Len(suite.T(), page.Items, 2)

	status, env = suite.get("/api/nach/transactions?status=ERROR")
	suite.Require().Equal(http.StatusOK, status)
	suite.Require().NoError(json.Unmarshal(env.Data, &page))
	assert.Equal(suite.T(), int64(2), page.TotalRows)

	noMandate := suite.byRef("REF0000000003")
	shortAcct := suite.byRef("REF0000000004")
	success := suite.byRef("REF0000000001")
	assert.Equal(suite.T(), "ERROR", noMandate.Status)
	assert.Equal(suite.T(), "SUCCESS", success.Status)

	status, env = suite.get(fmt.Sprintf("/api/nach/transactions/%d", noMandate.ID))
	suite.Require().Equal(http.StatusOK, status)
	var detail txnJSON
	suite.Require().NoError(json.Unmarshal(env.Data, &detail))
	suite.Require().NotNil(detail.ErrorInfo)
	assert.Equal(suite.T(), "E001", detail.ErrorInfo.Code)

	status, env = suite.reprocess([]int64{noMandate.ID, shortAcct.ID, success.ID, 999999})
	suite.Require().Equal(http.StatusOK, status)
	var rp reprocessJSON
	suite.Require().NoError(json.Unmarshal(env.Data, &rp))
	assert.Equal(suite.T(), 1, rp.SuccessCount)
	assert.Equal(suite.T(), 1, rp.FailedCount)
	assert.Equal(suite.T(), 2, rp.TotalCount)
	assert.Equal(suite.T(), 2, rp.SkippedCount)

	reprocessed := suite.byRef("REF0000000003")
	assert.Equal(suite.T(), "REPROCESSED", reprocessed.Status)
	assert.Nil(suite.T(), reprocessed.ErrorCode)
	assert.Equal(suite.T(), "ERROR", suite.byRef("REF0000000004").Status)

	status, env = suite.get("/api/nach/stats")
	suite.Require().Equal(http.StatusOK, status)
	var stats struct {
		TotalTransactions int64   `json:"total_transactions"`
		ReprocessedCount  int64   `json:"reprocessed_count"`
		SuccessRate       float64 `json:"success_rate"`
		ErrorRate         float64 `json:"error_rate"`
	}
	suite.Require().NoError(json.Unmarshal(env.Data, &stats))
	assert.Equal(suite.T(), int64(4), stats.TotalTransactions)
	assert.Equal(suite.T(), int64(1), stats.ReprocessedCount)
	assert.Equal(suite.T(), 75.0, stats.SuccessRate)
	assert.Equal(suite.T(), 25.0, stats.ErrorRate)

	status, env = suite.upload(sampleFileName, sampleFile)
	suite.Require().Equal(http.StatusOK, status)
	suite.Require().NoError(json.Unmarshal(env.Data, &up))
	assert.Equal(suite.T(), 0, up.SuccessCount)
	assert.Equal(suite.T(), 4, up.DuplicateCount)

	resp, err := suite.client.Get(suite.baseURL + "/api/nach/transactions/export")
	suite.Require().NoError(err)
	defer resp.Body.Close()
	suite.Require().Equal(http.StatusOK, resp.StatusCode)
	assert.Equal(suite.T(), report.ContentType, resp.Header.Get("Content-Type"))
	f, err := excelize.OpenReader(resp.Body)
	suite.Require().NoError(err)
	defer f.Close()
	rows, err := f.GetRows(report.TransactionsSheet)
	suite.Require().NoError(err)
	assert.Len(suite.T(), rows, 5)
}

func (suite *IntegrationTestSuite) TestConcurrentReprocess() {
	content := "TXN_REF_NO|MANDATE_ID|ACCOUNT_NO|AMOUNT\n"
	for i := 0; i < 10; i++ {
		content += fmt.Sprintf("CONC%09d||40300000%02d|10.00\n", i, i)
	}
	status, env := suite.upload("ACH-CR-CONC-TEST.txt", content)
	suite.Require().Equal(http.StatusOK, status, "upload: %+v", env.Error)

	status, env = suite.get("/api/nach/transactions?searchTerm=CONC&status=ERROR&pageSize=100")
	suite.Require().Equal(http.StatusOK, status)
	var page pageJSON
	suite.Require().NoError(json.Unmarshal(env.Data, &page))
	suite.Require().Len(page.Items, 10)

	ids := make([]int64, 0, len(page.Items))
	for _, t := range page.Items {
		ids = append(ids, t.ID)
	}

	const callers = 5
	var wg sync.WaitGroup
	results := make([]reprocessJSON, callers)
	for c := 0; c < callers; c++ {
		wg.Add(1)
		go func(c int) {
			defer wg.Done()
			status, env := suite.reprocess(ids)
			if status == http.StatusOK {
				json.Unmarshal(env.Data, &results[c])
			}
		}(c)
	}
	wg.Wait()

	total := 0
	for _, r := range results {
		total += r.SuccessCount
		assert.Zero(suite.T(), r.FailedCount)
	}
	assert.Equal(suite.T(), len(ids), total, "each record is reprocessed exactly once")
}

func (suite *IntegrationTestSuite) TestRejectedRequests() {
	status, env := suite.upload("payments.csv", "a|b|c|d")
	assert.Equal(suite.T(), http.StatusBadRequest, status)
	suite.Require().NotNil(env.Error)
	assert.Equal(suite.T(), "invalid_file", env.Error.Code)

	status, env = suite.reprocess(nil)
	assert.Equal(suite.T(), http.StatusBadRequest, status)
	suite.Require().NotNil(env.Error)
	assert.Equal(suite.T(), "invalid_reprocess_request", env.Error.Code)

	status, _ = suite.get("/api/nach/transactions/424242")
	assert.Equal(suite.T(), http.StatusNotFound, status)

	status, env = suite.get("/api/nach/error-codes")
	assert.Equal(suite.T(), http.StatusOK, status)
	var codes []map[string]interface{}
	suite.Require().NoError(json.Unmarshal(env.Data, &codes))
	assert.Len(suite.T(), codes, 12)
}

func TestIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}
	suite.Run(t, new(IntegrationTestSuite))
}
