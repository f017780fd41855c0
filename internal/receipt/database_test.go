package receipt

import (
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/receipt-reader/internal/fields"
)

var _ = Describe("BoltDB", func() {
	var (
		tmpDir string
		dbPath string
		db     *BoltDB
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		dbPath = filepath.Join(tmpDir, "test.db")
		var err error
		db, err = NewBoltDB(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	newReceipt := func(id string) *Receipt {
		return &Receipt{
			ID: id,
			Record: fields.Record{
				Store: "ドラッグストア",
				Date:  "2024/01/15",
				Items: []fields.LineItem{
					{Date: "2024/01/15", Store: "ドラッグストア", Name: "目薬", Amount: 598},
				},
				Total: 598,
			},
			Filename:    id + "_test.jpg",
			ContentType: "image/jpeg",
			CreatedAt:   time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
			UpdatedAt:   time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
		}
	}

	Describe("SaveReceipt", func() {
		var (
			receipt *Receipt
			err     error
		)

		BeforeEach(func() {
			receipt = newReceipt("test-id")
		})

		JustBeforeEach(func() {
			err = db.SaveReceipt(receipt)
		})

		When("saving succeeds", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should save the receipt to the database", func() {
				saved, getErr := db.GetReceipt("test-id")
				Expect(getErr).NotTo(HaveOccurred())
				Expect(saved.ID).To(Equal("test-id"))
			})
		})

		When("the receipt already exists", func() {
			BeforeEach(func() {
				Expect(db.SaveReceipt(newReceipt("test-id"))).To(Succeed())
				receipt.BatchID = "batch-1"
			})

			It("should overwrite it", func() {
				saved, getErr := db.GetReceipt("test-id")
				Expect(getErr).NotTo(HaveOccurred())
				Expect(saved.BatchID).To(Equal("batch-1"))
			})
		})
	})

	Describe("GetReceipt", func() {
		var (
			receiptID string
			receipt   *Receipt
			err       error
		)

		JustBeforeEach(func() {
			receipt, err = db.GetReceipt(receiptID)
		})

		When("receipt exists", func() {
			BeforeEach(func() {
				receiptID = "test-id"
				Expect(db.SaveReceipt(newReceipt("test-id"))).To(Succeed())
			})

			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should round-trip the record", func() {
				Expect(receipt.Record.Store).To(Equal("ドラッグストア"))
				Expect(receipt.Record.Items).To(HaveLen(1))
				Expect(receipt.Record.Items[0].Name).To(Equal("目薬"))
				Expect(receipt.Record.Total).To(Equal(598.0))
			})

			It("should round-trip the timestamps", func() {
				Expect(receipt.CreatedAt.Equal(time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC))).To(BeTrue())
			})
		})

		When("receipt does not exist", func() {
			BeforeEach(func() {
				receiptID = "nonexistent"
			})

			It("returns ErrReceiptNotFound", func() {
				Expect(err).To(MatchError(ErrReceiptNotFound))
				Expect(err).To(MatchError(ContainSubstring("nonexistent")))
			})

			It("should return nil receipt", func() {
				Expect(receipt).To(BeNil())
			})
		})
	})

	Describe("ListReceipts", func() {
		When("the database is empty", func() {
			It("returns an empty, non-nil slice", func() {
				receipts, err := db.ListReceipts()
				Expect(err).NotTo(HaveOccurred())
				Expect(receipts).NotTo(BeNil())
				Expect(receipts).To(BeEmpty())
			})
		})

		When("receipts exist", func() {
			BeforeEach(func() {
				Expect(db.SaveReceipt(newReceipt("a"))).To(Succeed())
				Expect(db.SaveReceipt(newReceipt("b"))).To(Succeed())
			})

			It("returns all of them", func() {
				receipts, err := db.ListReceipts()
				Expect(err).NotTo(HaveOccurred())
				Expect(receipts).To(HaveLen(2))
			})
		})
	})

	Describe("DeleteReceipt", func() {
		BeforeEach(func() {
			Expect(db.SaveReceipt(newReceipt("test-id"))).To(Succeed())
		})

		It("removes the receipt", func() {
			Expect(db.DeleteReceipt("test-id")).To(Succeed())
			_, err := db.GetReceipt("test-id")
			Expect(err).To(MatchError(ErrReceiptNotFound))
		})

		It("does not fail for unknown IDs", func() {
			Expect(db.DeleteReceipt("nonexistent")).To(Succeed())
		})
	})

	Describe("batches", func() {
		var batch *Batch

		BeforeEach(func() {
			batch = &Batch{
				ID:         "batch-1",
				ReceiptIDs: []string{"a", "b"},
				Total:      1196,
				CreatedAt:  time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
				UpdatedAt:  time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
			}
			Expect(db.SaveBatch(batch)).To(Succeed())
		})

		It("round-trips a saved batch", func() {
			saved, err := db.GetBatch("batch-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(saved.ReceiptIDs).To(Equal([]string{"a", "b"}))
			Expect(saved.Total).To(Equal(1196.0))
		})

		It("returns ErrBatchNotFound for unknown batches", func() {
			saved, err := db.GetBatch("nonexistent")
			Expect(err).To(MatchError(ErrBatchNotFound))
			Expect(saved).To(BeNil())
		})

		It("lists batches separately from receipts", func() {
			Expect(db.SaveReceipt(newReceipt("a"))).To(Succeed())
			batches, err := db.ListBatches()
			Expect(err).NotTo(HaveOccurred())
			Expect(batches).To(HaveLen(1))
			Expect(batches[0].ID).To(Equal("batch-1"))
		})
	})

	Describe("reopening", func() {
		It("keeps data across restarts", func() {
			Expect(db.SaveReceipt(newReceipt("persisted"))).To(Succeed())
			Expect(db.Close()).To(Succeed())

			var err error
			db, err = NewBoltDB(dbPath)
			Expect(err).NotTo(HaveOccurred())

			saved, err := db.GetReceipt("persisted")
			Expect(err).NotTo(HaveOccurred())
			Expect(saved.Record.Total).To(Equal(598.0))
		})
	})
})
