package signature

import (
	"bytes"
	"encoding/binary"
	"encoding/pem"
	"io"
	"reflect"

	"github.com/foxboron/go-uefi-sct/efi/util"
	"github.com/pkg/errors"
)

// Section 32.4.1 Signature Database
// Page 1714 -> Page 1717
var (
	CERT_SHA256_GUID         = util.EFIGUID{Data1: 0xc1c41626, Data2: 0x504c, Data3: 0x4092, Data4: [8]uint8{0xac, 0xa9, 0x41, 0xf9, 0x36, 0x93, 0x43, 0x28}}
	CERT_RSA2048_GUID        = util.EFIGUID{Data1: 0x3c5766e8, Data2: 0x269c, Data3: 0x4e34, Data4: [8]uint8{0xaa, 0x14, 0xed, 0x77, 0x6e, 0x85, 0xb3, 0xb6}}
	CERT_RSA2048_SHA256_GUID = util.EFIGUID{Data1: 0xe2b36190, Data2: 0x879b, Data3: 0x4a3d, Data4: [8]uint8{0xad, 0x8d, 0xf2, 0xe7, 0xbb, 0xa3, 0x27, 0x84}}

	CERT_SHA1_GUID         = util.EFIGUID{Data1: 0x826ca512, Data2: 0xcf10, Data3: 0x4ac9, Data4: [8]uint8{0xb1, 0x87, 0xbe, 0x01, 0x49, 0x66, 0x31, 0xbd}}
	CERT_RSA2048_SHA1_GUID = util.EFIGUID{Data1: 0x67f8444f, Data2: 0x8743, Data3: 0x48f1, Data4: [8]uint8{0xa3, 0x28, 0x1e, 0xaa, 0xb8, 0x73, 0x60, 0x80}}

	CERT_X509_GUID = util.EFIGUID{Data1: 0xa5c059a1, Data2: 0x94e4, Data3: 0x4aa7, Data4: [8]uint8{0x87, 0xb5, 0xab, 0x15, 0x5c, 0x2b, 0xf0, 0x72}}

	CERT_SHA224_GUID = util.EFIGUID{Data1: 0xb6e5233, Data2: 0xa65c, Data3: 0x44c9, Data4: [8]uint8{0x94, 0x07, 0xd9, 0xab, 0x83, 0xbf, 0xc8, 0xbd}}

	CERT_SHA384_GUID = util.EFIGUID{Data1: 0xff3e5307, Data2: 0x9fd0, Data3: 0x48c9, Data4: [8]uint8{0x85, 0xf1, 0x8a, 0xd5, 0x6c, 0x70, 0x1e, 0x01}}

	CERT_SHA512_GUID = util.EFIGUID{Data1: 0x93e0fae, Data2: 0xa6c4, Data3: 0x4f50, Data4: [8]uint8{0x9f, 0x1b, 0xd4, 0x1e, 0x2b, 0x89, 0xc1, 0x9a}}

	CERT_X509_SHA256_GUID = util.EFIGUID{Data1: 0x3bd2a492, Data2: 0x96c0, Data3: 0x4079, Data4: [8]uint8{0xb4, 0x20, 0xfc, 0xf9, 0x8e, 0xf1, 0x03, 0xed}}
)

type CertType string

const (
	CERT_SHA256         CertType = "SHA256"
	CERT_RSA2048        CertType = "RSA2048"
	CERT_RSA2048_SHA256 CertType = "RSA2048 SHA256"
	CERT_SHA1           CertType = "SHA1"
	CERT_RSA2048_SHA1   CertType = "RSA2048 SHA1"
	CERT_X509           CertType = "X509"
	CERT_SHA224         CertType = "SHA224"
	CERT_SHA384         CertType = "SHA384"
	CERT_SHA512         CertType = "SHA512"
	CERT_X509_SHA256    CertType = "X509 SHA256"
)

// Quick access list
var ValidEFISignatureSchemes = map[util.EFIGUID]CertType{
	CERT_SHA256_GUID:         CERT_SHA256,
	CERT_RSA2048_GUID:        CERT_RSA2048,
	CERT_RSA2048_SHA256_GUID: CERT_RSA2048_SHA256,
	CERT_SHA1_GUID:           CERT_SHA1,
	CERT_RSA2048_SHA1_GUID:   CERT_RSA2048_SHA1,
	CERT_X509_GUID:           CERT_X509,
	CERT_SHA224_GUID:         CERT_SHA224,
	CERT_SHA384_GUID:         CERT_SHA384,
	CERT_SHA512_GUID:         CERT_SHA512,
	CERT_X509_SHA256_GUID:    CERT_X509_SHA256,
}

// Fixed signature sizes, owner GUID excluded.
var fixedSignatureSize = map[util.EFIGUID]uint32{
	CERT_SHA1_GUID:   20,
	CERT_SHA224_GUID: 28,
	CERT_SHA256_GUID: 32,
	CERT_SHA384_GUID: 48,
	CERT_SHA512_GUID: 64,
}

// Section 3.3 - Globally Defined Variables
// Array of GUIDs representing the type of signatures supported by
// the platform firmware. Should be treated as read-only
func GetSupportedSignatures(f io.Reader) ([]util.EFIGUID, error) {
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(f); err != nil {
		return nil, err
	}
	supportedSigs := make([]util.EFIGUID, buf.Len()/util.SizeofEFIGUID)
	if err := binary.Read(buf, binary.LittleEndian, &supportedSigs); err != nil {
		return nil, errors.Wrapf(err, "could not parse EFIGUIDs from this reader")
	}
	return supportedSigs, nil
}

// Section 32.4.1 - Signature Database
// Page 1712
type SignatureData struct {
	Owner util.EFIGUID
	Data  []uint8
}

func ReadSignatureData(f io.Reader, size uint32) (*SignatureData, error) {
	if size < util.SizeofEFIGUID {
		return nil, errors.Errorf("signature size %d is smaller than the owner guid", size)
	}
	s := SignatureData{}
	if err := binary.Read(f, binary.LittleEndian, &s.Owner); err != nil {
		return nil, errors.Wrapf(err, "could not read signature owner")
	}
	s.Data = make([]uint8, size-util.SizeofEFIGUID)
	if _, err := io.ReadFull(f, s.Data); err != nil {
		return nil, errors.Wrapf(err, "could not read signature data")
	}
	return &s, nil
}

func WriteSignatureData(b io.Writer, s SignatureData) error {
	for _, v := range []interface{}{s.Owner, s.Data} {
		if err := binary.Write(b, binary.LittleEndian, v); err != nil {
			return errors.Wrap(err, "couldn't write signature data")
		}
	}
	return nil
}

func (sd *SignatureData) Bytes() []byte {
	buf := new(bytes.Buffer)
	WriteSignatureData(buf, *sd)
	return buf.Bytes()
}

// Section 32.4.1 - Signature Database
// Page 1713
type SignatureList struct {
	SignatureType   util.EFIGUID
	ListSize        uint32          // Total size of the signature list, including this header
	HeaderSize      uint32          // Size of SignatureHead
	Size            uint32          // Size of each signature. At least the size of EFI_SIGNATURE_DATA
	SignatureHeader []uint8         // SignatureType defines the content of this header
	Signatures      []SignatureData // SignatureData List
}

// sizeof(SignatureType) + sizeof(uint32)*3
const SizeofSignatureList uint32 = util.SizeofEFIGUID + 4 + 4 + 4

var ErrNotFoundSigData = errors.New("signature data not found")
var ErrSigDataExists = errors.New("signature data exists already")

func NewSignatureList(certtype util.EFIGUID) *SignatureList {
	return &SignatureList{
		SignatureType:   certtype,
		ListSize:        SizeofSignatureList,
		SignatureHeader: []uint8{},
		Signatures:      []SignatureData{},
	}
}

// Compare the signature lists header to see if they are the same type of list
// This is usefull if you wonder if you can merge the lists or not
func (sl *SignatureList) CmpHeader(siglist *SignatureList) bool {
	if !util.CmpEFIGUID(sl.SignatureType, siglist.SignatureType) {
		return false
	}
	if sl.Size != siglist.Size {
		return false
	}
	return reflect.DeepEqual(sl.SignatureHeader, siglist.SignatureHeader)
}

// Check if signature exists in the signature list
// Return true if it does along with the index
func (sl *SignatureList) Exists(sigdata *SignatureData) (bool, int) {
	for index, sigs := range sl.Signatures {
		if !util.CmpEFIGUID(sigs.Owner, sigdata.Owner) {
			continue
		}
		if !bytes.Equal(sigs.Data, sigdata.Data) {
			continue
		}
		return true, index
	}
	return false, 0
}

func (sl *SignatureList) ExistsInList(siglist *SignatureList) bool {
	for _, item := range siglist.Signatures {
		if ok, _ := sl.Exists(&item); !ok {
			return false
		}
	}
	return true
}

func (sl *SignatureList) AppendBytes(owner util.EFIGUID, data []byte) error {
	switch sl.SignatureType {
	case CERT_X509_GUID:
		// We need the DER encoded cert, but accepting PEM makes the API nicer
		if block, _ := pem.Decode(data); block != nil {
			data = block.Bytes
		}
	default:
		if n, ok := fixedSignatureSize[sl.SignatureType]; ok && uint32(len(data)) != n {
			return errors.Errorf("expected a %d byte hash, got %d bytes", n, len(data))
		}
	}
	if ok, _ := sl.Exists(&SignatureData{owner, data}); ok {
		return ErrSigDataExists
	}
	size := uint32(len(data)) + util.SizeofEFIGUID
	if len(sl.Signatures) != 0 && size != sl.Size {
		return errors.Errorf("signature size %d does not match list size %d", size, sl.Size)
	}
	sl.Signatures = append(sl.Signatures, SignatureData{Owner: owner, Data: data})
	sl.Size = size
	sl.ListSize += sl.Size
	return nil
}

func (sl *SignatureList) AppendSignature(s SignatureData) error {
	return sl.AppendBytes(s.Owner, s.Data)
}

func (sl *SignatureList) RemoveBytes(owner util.EFIGUID, data []byte) error {
	ok, index := sl.Exists(&SignatureData{owner, data})
	if !ok {
		return ErrNotFoundSigData
	}
	if len(sl.Signatures) == 1 {
		*sl = *NewSignatureList(sl.SignatureType)
		return nil
	}
	sl.Signatures = append(sl.Signatures[:index], sl.Signatures[index+1:]...)
	sl.ListSize -= sl.Size
	return nil
}

func (sl *SignatureList) RemoveSignature(s SignatureData) error {
	return sl.RemoveBytes(s.Owner, s.Data)
}

func (sl *SignatureList) Bytes() []byte {
	buf := new(bytes.Buffer)
	WriteSignatureList(buf, *sl)
	return buf.Bytes()
}

// Writes a signature list
func WriteSignatureList(b io.Writer, s SignatureList) error {
	for _, v := range []interface{}{s.SignatureType, s.ListSize, s.HeaderSize, s.Size, s.SignatureHeader} {
		if err := binary.Write(b, binary.LittleEndian, v); err != nil {
			return errors.Wrap(err, "couldn't write signature list")
		}
	}
	for _, l := range s.Signatures {
		if err := WriteSignatureData(b, l); err != nil {
			return err
		}
	}
	return nil
}

// Read an EFI_SIGNATURE_LIST from io.Reader. io.EOF is returned unwrapped
// when the reader is exhausted before a new list starts, which is the
// expected way to end a database.
func ReadSignatureList(f io.Reader) (*SignatureList, error) {
	s := SignatureList{}
	if err := binary.Read(f, binary.LittleEndian, &s.SignatureType); err != nil {
		if err == io.EOF {
			return nil, err
		}
		return nil, errors.Wrapf(err, "couldn't read signature list")
	}
	for _, i := range []interface{}{&s.ListSize, &s.HeaderSize, &s.Size} {
		if err := binary.Read(f, binary.LittleEndian, i); err != nil {
			return nil, errors.Wrapf(io.ErrUnexpectedEOF, "couldn't read signature list: %v", err)
		}
	}
	if s.ListSize < SizeofSignatureList+s.HeaderSize {
		return nil, errors.Errorf("signature list size %d is too small", s.ListSize)
	}
	if n, ok := fixedSignatureSize[s.SignatureType]; ok && s.Size != n+util.SizeofEFIGUID {
		return nil, errors.Errorf("unexpected signature size %d for %s", s.Size, ValidEFISignatureSchemes[s.SignatureType])
	}
	if s.SignatureType == CERT_X509_GUID && s.HeaderSize != 0 {
		return nil, errors.New("unexpected HeaderSize for x509 cert, should be 0")
	}
	s.SignatureHeader = make([]uint8, s.HeaderSize)
	if _, err := io.ReadFull(f, s.SignatureHeader); err != nil {
		return nil, errors.Wrap(err, "couldn't read signature header")
	}

	// The list size minus the header lets us figure out how much signature
	// data we should read.
	totalSize := s.ListSize - SizeofSignatureList - s.HeaderSize
	if s.Size == 0 || totalSize%s.Size != 0 {
		if totalSize != 0 {
			return nil, errors.Errorf("signature list size %d is not a multiple of %d", totalSize, s.Size)
		}
	}
	s.Signatures = []SignatureData{}
	for totalSize > 0 {
		sigdata, err := ReadSignatureData(f, s.Size)
		if err != nil {
			return nil, err
		}
		s.Signatures = append(s.Signatures, *sigdata)
		totalSize -= s.Size
	}
	return &s, nil
}
