package MFT

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/utxob/Data-Recover-toll/logger"
	"github.com/utxob/Data-Recover-toll/utils"
	"golang.org/x/sync/errgroup"
)

var (
	ErrRecordNotFound    = errors.New("MFT entry not found")
	ErrParentReallocated = errors.New("MFT entry has been reallocated")
)

// MFTTable holds the records of $MFT indexed by entry number.
type MFTTable struct {
	Records    []Record
	RecordSize int
	Invalid    []error
}

// ProcessRecords decodes every record of the $MFT buffer concurrently. Records failing
// validation are logged, kept in Invalid and left empty in Records. Only a cancelled ctx
// is returned.
func (mfttable *MFTTable) ProcessRecords(ctx context.Context, data []byte) error {
	if mfttable.RecordSize == 0 {
		mfttable.RecordSize = RecordSize
	}
	nofRecords := len(data) / mfttable.RecordSize
	mfttable.Records = make([]Record, nofRecords)
	errs := make([]error, nofRecords)
	logger.RecoveryLogger.Info(fmt.Sprintf("Processing %s $MFT entries", utils.Stringify(int64(nofRecords))))

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(runtime.NumCPU())
	for pos := 0; pos < nofRecords && gctx.Err() == nil; pos++ {
		group.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			bs := data[pos*mfttable.RecordSize : (pos+1)*mfttable.RecordSize]
			if utils.Hexify(bs[:4]) == "00000000" { //zero area skip
				return nil
			}
			record := &mfttable.Records[pos]
			if err := record.Process(bs); err != nil {
				*record = Record{}
				errs[pos] = fmt.Errorf("entry %d: %w", pos, err)
				return nil
			}
			// entry numbers are absent before NTFS 3.1
			record.Entry = uint32(pos)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, err := range errs {
		if err != nil {
			logger.RecoveryLogger.Warning(err.Error())
			mfttable.Invalid = append(mfttable.Invalid, err)
		}
	}
	return nil
}

func (mfttable MFTTable) GetRecord(referencedEntry uint32, referencedSeq uint16) (*Record, error) {
	if int(referencedEntry) >= len(mfttable.Records) || !mfttable.Records[referencedEntry].IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrRecordNotFound, referencedEntry)
	}
	record := &mfttable.Records[referencedEntry]
	if record.Seq-referencedSeq > 1 { //allow for deleted records
		return nil, fmt.Errorf("%w: entry %d seq %d ref seq %d", ErrParentReallocated,
			record.Entry, record.Seq, referencedSeq)
	}
	return record, nil
}

// CreateLinkedRecords attaches extension records to their base record, from attribute
// lists and from the base reference of extension records that no list names.
func (mfttable *MFTTable) CreateLinkedRecords() {
	linked := make(map[uint32]bool)
	for idx := range mfttable.Records {
		for _, linkedRecordInfo := range mfttable.Records[idx].LinkedRecordsInfo {
			//cannot point to itself
			if mfttable.Records[idx].Entry == linkedRecordInfo.RefEntry || linked[linkedRecordInfo.RefEntry] {
				continue
			}
			linkedRecord, err := mfttable.GetRecord(linkedRecordInfo.RefEntry, linkedRecordInfo.RefSeq)
			if err != nil {
				logger.RecoveryLogger.Warning(fmt.Sprintf("record %d linked entry: %v", idx, err))
				continue
			}
			mfttable.link(&mfttable.Records[idx], linkedRecord)
			linked[linkedRecord.Entry] = true
		}
	}

	for idx := range mfttable.Records {
		record := &mfttable.Records[idx]
		if !record.IsValid() || !record.IsExtension() || linked[record.Entry] {
			continue
		}
		base, err := mfttable.GetRecord(uint32(record.BaseRef&0xffffffffffff), uint16(record.BaseRef>>48))
		if err != nil || base.IsExtension() {
			continue
		}
		mfttable.link(base, record)
	}
}

func (mfttable *MFTTable) link(base *Record, linkedRecord *Record) {
	logger.RecoveryLogger.Info(fmt.Sprintf("linked record %d to %d", linkedRecord.Entry, base.Entry))
	linkedRecord.OriginLinkedRecord = base
	base.LinkedRecords = append(base.LinkedRecords, linkedRecord)
}

// FindParentRecords resolves parents from $FILE_NAME, a missing or reallocated parent
// marks the record orphan.
func (mfttable *MFTTable) FindParentRecords() {
	for idx := range mfttable.Records {
		record := &mfttable.Records[idx]
		if !record.IsValid() || record.IsExtension() {
			continue
		}
		parRef, parSeq, ok := record.GetParentRef()
		if !ok {
			continue
		}
		if parRef == record.Entry {
			continue // root
		}
		parentRecord, err := mfttable.GetRecord(parRef, parSeq)
		if err != nil {
			record.Orphan = true
			continue
		}
		record.Parent = parentRecord
	}
}
