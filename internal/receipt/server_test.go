package receipt

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"regexp"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/receipt-reader/internal/fields"
	"github.com/zombor/receipt-reader/internal/scanning"
)

var anyPath = regexp.MustCompile(`.*`)

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		storage     *mockStorage
		scanner     *mockScanner
		service     *Service
		server      *Server
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	setupServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		service = NewService(db, scanner, storage)
		server = NewServerWithMux(service, auth, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		for _, method := range []string{"GET", "POST", "DELETE", "OPTIONS"} {
			ghttpServer.RouteToHandler(method, anyPath, server.ServeHTTP)
		}
	}

	do := func(method, path string, body io.Reader, contentType string) *http.Response {
		req, err := http.NewRequest(method, ghttpServer.URL()+path, body)
		Expect(err).NotTo(HaveOccurred())
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(resp.Body.Close)
		return resp
	}

	readBody := func(resp *http.Response) []byte {
		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		return body
	}

	errorMessage := func(resp *http.Response) string {
		var body map[string]string
		Expect(json.Unmarshal(readBody(resp), &body)).To(Succeed())
		return body["error"]
	}

	upload := func(filename string, data []byte) (io.Reader, string) {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		part, err := w.CreateFormFile("file", filename)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(w.Close()).To(Succeed())
		return &buf, w.FormDataContentType()
	}

	postJSON := func(path string, v any) *http.Response {
		data, err := json.Marshal(v)
		Expect(err).NotTo(HaveOccurred())
		return do("POST", path, bytes.NewReader(data), "application/json")
	}

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		scanner = newMockScanner()
		auth = BasicAuth{}
		setupServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
			ghttpServer = nil
		}
	})

	Describe("GET /healthz", func() {
		It("should return ok", func() {
			resp := do("GET", "/healthz", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(string(readBody(resp))).To(Equal("ok"))
		})
	})

	Describe("POST /api/receipts/scan", func() {
		When("a photo is uploaded", func() {
			var resp *http.Response

			BeforeEach(func() {
				body, contentType := upload("receipt.jpg", []byte("fake jpeg"))
				resp = do("POST", "/api/receipts/scan", body, contentType)
			})

			It("should return status OK", func() {
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
			})

			It("should return the scanned receipt without saving it", func() {
				var receipt Receipt
				Expect(json.Unmarshal(readBody(resp), &receipt)).To(Succeed())
				Expect(receipt.ID).NotTo(BeEmpty())
				Expect(receipt.Record.Store).To(Equal("スーパー田中"))
				Expect(receipt.Record.Items).To(HaveLen(2))
				Expect(db.receipts).To(BeEmpty())
			})

			It("should guess the content type from the extension", func() {
				var receipt Receipt
				Expect(json.Unmarshal(readBody(resp), &receipt)).To(Succeed())
				Expect(receipt.ContentType).To(Equal("image/jpeg"))
			})

			It("should include the consistency flag", func() {
				var raw struct {
					Record map[string]any `json:"record"`
				}
				Expect(json.Unmarshal(readBody(resp), &raw)).To(Succeed())
				Expect(raw.Record).To(HaveKeyWithValue("consistent", true))
			})

			It("should keep the upload in storage", func() {
				Expect(storage.files).To(HaveLen(1))
			})
		})

		When("no text can be read", func() {
			BeforeEach(func() {
				scanner.scanErr = fmt.Errorf("reading: %w", scanning.ErrNoTextExtracted)
			})

			It("should return Unprocessable Entity", func() {
				body, contentType := upload("blank.png", []byte("blank"))
				resp := do("POST", "/api/receipts/scan", body, contentType)
				Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
				Expect(errorMessage(resp)).To(ContainSubstring("No text could be read"))
				Expect(storage.files).To(BeEmpty())
			})
		})

		When("the scanner fails", func() {
			BeforeEach(func() {
				scanner.scanErr = errors.New("unsupported image format")
			})

			It("should return Bad Request with the reason", func() {
				body, contentType := upload("receipt.txt", []byte("text"))
				resp := do("POST", "/api/receipts/scan", body, contentType)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(errorMessage(resp)).To(ContainSubstring("unsupported image format"))
			})
		})

		When("the form has no file", func() {
			It("should ask the user to choose one", func() {
				var buf bytes.Buffer
				w := multipart.NewWriter(&buf)
				Expect(w.WriteField("note", "hello")).To(Succeed())
				Expect(w.Close()).To(Succeed())

				resp := do("POST", "/api/receipts/scan", &buf, w.FormDataContentType())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(errorMessage(resp)).To(ContainSubstring("No file was selected"))
			})
		})

		When("the body is not a form", func() {
			It("should return Bad Request", func() {
				resp := do("POST", "/api/receipts/scan", strings.NewReader("{}"), "application/json")
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(errorMessage(resp)).To(Equal("Error parsing form"))
			})
		})
	})

	Describe("POST /api/receipts", func() {
		It("should save a reviewed receipt", func() {
			resp := postJSON("/api/receipts", Receipt{
				ID:       "r1",
				Filename: "r1_receipt.jpg",
				Record: fields.Record{
					Store: "八百屋",
					Date:  "2024/03/03",
					Items: []fields.LineItem{{Name: "大根", Amount: 120}},
					Total: 120,
				},
			})
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			Expect(db.receipts).To(HaveKey("r1"))
			Expect(db.receipts["r1"].Record.Items[0].Store).To(Equal("八百屋"))
		})

		It("should reject invalid JSON", func() {
			resp := do("POST", "/api/receipts", strings.NewReader("{"), "application/json")
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(errorMessage(resp)).To(Equal("Invalid request body"))
		})

		It("should reject receipts without an ID", func() {
			resp := postJSON("/api/receipts", Receipt{})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(db.receipts).To(BeEmpty())
		})
	})

	Describe("GET /api/receipts", func() {
		When("receipts exist", func() {
			BeforeEach(func() {
				db.receipts["id1"] = storedReceipt("id1", 100)
				db.receipts["id2"] = storedReceipt("id2", 200)
			})

			It("should return all receipts as JSON", func() {
				resp := do("GET", "/api/receipts", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))

				var receipts []*Receipt
				Expect(json.Unmarshal(readBody(resp), &receipts)).To(Succeed())
				Expect(receipts).To(HaveLen(2))
			})
		})

		When("no receipts exist", func() {
			It("should return an empty array", func() {
				resp := do("GET", "/api/receipts", nil, "")
				Expect(strings.TrimSpace(string(readBody(resp)))).To(Equal("[]"))
			})
		})

		When("the database fails", func() {
			BeforeEach(func() {
				db.listErr = errors.New("disk error")
			})

			It("should return Internal Server Error", func() {
				resp := do("GET", "/api/receipts", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			})
		})
	})

	Describe("GET /api/receipts/{id}", func() {
		BeforeEach(func() {
			db.receipts["id1"] = storedReceipt("id1", 100)
		})

		It("should return the receipt", func() {
			resp := do("GET", "/api/receipts/id1", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var receipt Receipt
			Expect(json.Unmarshal(readBody(resp), &receipt)).To(Succeed())
			Expect(receipt.ID).To(Equal("id1"))
		})

		It("should return Not Found for unknown receipts", func() {
			resp := do("GET", "/api/receipts/missing", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			Expect(errorMessage(resp)).To(Equal("Receipt not found"))
		})

		It("should return Internal Server Error when the database fails", func() {
			db.getErr = errors.New("disk error")
			resp := do("GET", "/api/receipts/id1", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
		})
	})

	Describe("GET /api/receipts/{id}/file", func() {
		BeforeEach(func() {
			r := storedReceipt("id1", 100)
			r.ContentType = "image/png"
			db.receipts["id1"] = r
			storage.files[r.Filename] = []byte("png bytes")
		})

		It("should return the original upload", func() {
			resp := do("GET", "/api/receipts/id1/file", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("image/png"))
			Expect(string(readBody(resp))).To(Equal("png bytes"))
		})

		It("should return Not Found when the file is missing", func() {
			storage.files = map[string][]byte{}
			resp := do("GET", "/api/receipts/id1/file", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("GET /api/receipts/{id}/csv", func() {
		BeforeEach(func() {
			db.receipts["id1"] = storedReceipt("id1", 198,
				fields.LineItem{Date: "2024/01/15", Store: "Store id1", Name: "牛乳", Amount: 198},
			)
		})

		It("should download the items as CSV", func() {
			resp := do("GET", "/api/receipts/id1/csv", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("text/csv; charset=utf-8"))
			Expect(resp.Header.Get("Content-Disposition")).To(Equal(`attachment; filename="receipt_id1.csv"`))

			body := string(readBody(resp))
			Expect(body).To(HavePrefix("\xEF\xBB\xBF日付,店舗名,商品名,金額\n"))
			Expect(body).To(ContainSubstring("2024/01/15,Store id1,牛乳,198\n"))
		})

		It("should return Not Found for unknown receipts", func() {
			resp := do("GET", "/api/receipts/missing/csv", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("DELETE /api/receipts/{id}", func() {
		BeforeEach(func() {
			db.receipts["id1"] = storedReceipt("id1", 100)
			storage.files["id1_receipt.jpg"] = []byte("data")
		})

		It("should delete the receipt and its file", func() {
			resp := do("DELETE", "/api/receipts/id1", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(db.receipts).To(BeEmpty())
			Expect(storage.files).To(BeEmpty())
		})

		It("should return Not Found for unknown receipts", func() {
			resp := do("DELETE", "/api/receipts/missing", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("batches", func() {
		BeforeEach(func() {
			db.receipts["r1"] = storedReceipt("r1", 300,
				fields.LineItem{Date: "2024/01/15", Store: "Store r1", Name: "弁当", Amount: 300},
			)
			db.receipts["r2"] = storedReceipt("r2", 150,
				fields.LineItem{Date: "2024/01/15", Store: "Store r2", Name: "お茶", Amount: 150},
			)
		})

		createBatch := func(ids ...string) *http.Response {
			return postJSON("/api/batches", map[string][]string{"receipt_ids": ids})
		}

		It("should create a batch", func() {
			resp := createBatch("r1", "r2")
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			var batch Batch
			Expect(json.Unmarshal(readBody(resp), &batch)).To(Succeed())
			Expect(batch.Total).To(Equal(450.0))
			Expect(db.receipts["r1"].BatchID).To(Equal(batch.ID))
		})

		It("should return Conflict for receipts already in a batch", func() {
			Expect(createBatch("r1").StatusCode).To(Equal(http.StatusCreated))
			resp := createBatch("r1", "r2")
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
		})

		It("should return Bad Request for an empty batch", func() {
			resp := createBatch()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should return Bad Request for unknown receipts", func() {
			resp := createBatch("r1", "missing")
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(db.batches).To(BeEmpty())
		})

		It("should return Bad Request for invalid JSON", func() {
			resp := do("POST", "/api/batches", strings.NewReader("nope"), "application/json")
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		When("a batch exists", func() {
			var batchID string

			BeforeEach(func() {
				resp := createBatch("r2", "r1")
				var batch Batch
				Expect(json.Unmarshal(readBody(resp), &batch)).To(Succeed())
				batchID = batch.ID
			})

			It("should list it", func() {
				resp := do("GET", "/api/batches", nil, "")
				var batches []*Batch
				Expect(json.Unmarshal(readBody(resp), &batches)).To(Succeed())
				Expect(batches).To(HaveLen(1))
				Expect(batches[0].ID).To(Equal(batchID))
			})

			It("should return the batch with its receipts", func() {
				resp := do("GET", "/api/batches/"+batchID, nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var body struct {
					Batch    Batch      `json:"batch"`
					Receipts []*Receipt `json:"receipts"`
				}
				Expect(json.Unmarshal(readBody(resp), &body)).To(Succeed())
				Expect(body.Batch.ID).To(Equal(batchID))
				Expect(body.Receipts).To(HaveLen(2))
				Expect(body.Receipts[0].ID).To(Equal("r2"))
			})

			It("should export every item in batch order", func() {
				resp := do("GET", "/api/batches/"+batchID+"/csv", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Disposition")).To(ContainSubstring("batch_" + batchID + ".csv"))

				lines := strings.Split(strings.TrimSpace(string(readBody(resp))), "\n")
				Expect(lines).To(HaveLen(3))
				Expect(lines[1]).To(Equal("2024/01/15,Store r2,お茶,150"))
				Expect(lines[2]).To(Equal("2024/01/15,Store r1,弁当,300"))
			})
		})

		It("should return an empty array when there are no batches", func() {
			resp := do("GET", "/api/batches", nil, "")
			Expect(strings.TrimSpace(string(readBody(resp)))).To(Equal("[]"))
		})

		It("should return Not Found for unknown batches", func() {
			resp := do("GET", "/api/batches/missing", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			Expect(errorMessage(resp)).To(Equal("Batch not found"))

			resp = do("GET", "/api/batches/missing/csv", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("basic authentication", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "user", Password: "pass"}
			setupServer()
		})

		request := func(user, pass string) *http.Response {
			req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/receipts", nil)
			Expect(err).NotTo(HaveOccurred())
			if user != "" {
				req.SetBasicAuth(user, pass)
			}
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(resp.Body.Close)
			return resp
		}

		It("should reject requests without credentials", func() {
			resp := request("", "")
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).To(Equal(`Basic realm="Receipt Reader"`))
		})

		It("should reject wrong credentials", func() {
			resp := request("user", "wrong")
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("should accept correct credentials", func() {
			resp := request("user", "pass")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("should leave the health check open", func() {
			resp := do("GET", "/healthz", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})

	Describe("CORS", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "user", Password: "pass"}
			setupServer()
		})

		It("should answer preflight requests without credentials", func() {
			req, err := http.NewRequest("OPTIONS", ghttpServer.URL()+"/api/receipts/scan", nil)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Origin", "http://localhost:5173")
			req.Header.Set("Access-Control-Request-Method", "POST")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
			Expect(resp.Header.Get("Access-Control-Allow-Methods")).To(ContainSubstring("POST"))
		})

		It("should expose Content-Disposition on normal requests", func() {
			req, err := http.NewRequest("GET", ghttpServer.URL()+"/healthz", nil)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Origin", "http://localhost:5173")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
			Expect(resp.Header.Get("Access-Control-Expose-Headers")).To(ContainSubstring("Content-Disposition"))
		})
	})
})
