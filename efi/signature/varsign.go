package signature

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/foxboron/go-uefi-sct/efi/util"
	"github.com/pkg/errors"
)

// Section 32.2.4 Code Defintiions
// Page. 1707
// WIN_CERTIFICATE_UEFI_GUID

// According to page 1705
// UEFI Spec February 2020
var WIN_CERTIFICATE_REVISION uint16 = 0x0200

type WINCertType uint16

// Page 1705
// 0x0EF0 to 0x0EFF is the reserved range
var (
	WIN_CERT_TYPE_PKCS_SIGNED_DATA WINCertType = 0x0002
	WIN_CERT_TYPE_EFI_PKCS1_15     WINCertType = 0x0EF0
	WIN_CERT_TYPE_EFI_GUID         WINCertType = 0x0EF1
)

var ErrInvalidAuthHeader = errors.New("invalid authentication header")

// PE/COFF structure for signing
// Page 1705
type WINCertificate struct {
	Length   uint32
	Revision uint16
	CertType WINCertType
}

const SizeofWINCertificate = 4 + 2 + 2

func ReadWinCertificate(f io.Reader) (WINCertificate, error) {
	var cert WINCertificate
	if err := binary.Read(f, binary.LittleEndian, &cert); err != nil {
		return cert, errors.Wrap(ErrInvalidAuthHeader, err.Error())
	}
	if cert.Revision != WIN_CERTIFICATE_REVISION {
		return cert, errors.Wrapf(ErrInvalidAuthHeader, "WINCertificate revision should be %x, but is %x", WIN_CERTIFICATE_REVISION, cert.Revision)
	}
	return cert, nil
}

func WriteWinCertificate(b io.Writer, w *WINCertificate) error {
	return binary.Write(b, binary.LittleEndian, w)
}

var (
	EFI_CERT_TYPE_RSA2048_SHA256_GUID = util.EFIGUID{Data1: 0xa7717414, Data2: 0xc616, Data3: 0x4977, Data4: [8]uint8{0x94, 0x20, 0x84, 0x47, 0x12, 0xa7, 0x35, 0xbf}}
	EFI_CERT_TYPE_PKCS7_GUID          = util.EFIGUID{Data1: 0x4aafd29d, Data2: 0x68df, Data3: 0x49ee, Data4: [8]uint8{0x8a, 0xa9, 0x34, 0x7d, 0x37, 0x56, 0x65, 0xa7}}
)

// Page 1707
type WinCertificateUEFIGUID struct {
	Header   WINCertificate
	CertType util.EFIGUID // One of the EFI_CERT types
	CertData []uint8
}

const SizeofWinCertificateUEFIGUID = SizeofWINCertificate + util.SizeofEFIGUID

// ReadWinCertificateUEFIGUID reads the certificate. Header.Length covers the
// header itself, the GUID and the certificate data.
func ReadWinCertificateUEFIGUID(f io.Reader) (WinCertificateUEFIGUID, error) {
	var cert WinCertificateUEFIGUID
	var err error
	cert.Header, err = ReadWinCertificate(f)
	if err != nil {
		return cert, err
	}
	if cert.Header.Length < SizeofWinCertificateUEFIGUID {
		return cert, errors.Wrapf(ErrInvalidAuthHeader, "length %d is too small", cert.Header.Length)
	}
	if err := binary.Read(f, binary.LittleEndian, &cert.CertType); err != nil {
		return cert, errors.Wrap(ErrInvalidAuthHeader, err.Error())
	}
	cert.CertData = make([]byte, cert.Header.Length-SizeofWinCertificateUEFIGUID)
	if _, err := io.ReadFull(f, cert.CertData); err != nil {
		return cert, errors.Wrap(ErrInvalidAuthHeader, "truncated certificate data")
	}
	return cert, nil
}

func WriteWinCertificateUEFIGUID(b io.Writer, w *WinCertificateUEFIGUID) error {
	if err := WriteWinCertificate(b, &w.Header); err != nil {
		return err
	}
	if err := binary.Write(b, binary.LittleEndian, w.CertType); err != nil {
		return err
	}
	_, err := b.Write(w.CertData)
	return err
}

// Page. 238
// Only used when EFI_VARIABLE_ENHANCED_AUTHENTICATED_ACCESS is set
type EFIVariableAuthentication3 struct {
	Version      uint8
	Type         uint8
	MetadataSize uint32
	Flags        uint32
}

// Page. 238
// Only accepts the CertType EFI_CERT_TYPE_PKCS7_GUID
type EFIVariableAuthentication2 struct {
	Time     util.EFITime
	AuthInfo WinCertificateUEFIGUID
}

// Returns an EFIVariableAuthencation2 struct
// no SignedData
func NewEFIVariableAuthentication2() *EFIVariableAuthentication2 {
	return &EFIVariableAuthentication2{
		Time: *util.NewEFITime(),
		AuthInfo: WinCertificateUEFIGUID{
			Header: WINCertificate{
				Length:   SizeofWinCertificateUEFIGUID,
				Revision: WIN_CERTIFICATE_REVISION,
				CertType: WIN_CERT_TYPE_EFI_GUID,
			},
			CertType: EFI_CERT_TYPE_PKCS7_GUID,
		},
	}
}

// Size is the length of the descriptor on the wire.
func (e *EFIVariableAuthentication2) Size() int {
	return util.SizeofEFITime + int(e.AuthInfo.Header.Length)
}

func (e *EFIVariableAuthentication2) Bytes() []byte {
	buf := new(bytes.Buffer)
	WriteEFIVariableAuthencation2(buf, *e)
	return buf.Bytes()
}

func ReadEFIVariableAuthencation2(f io.Reader) (*EFIVariableAuthentication2, error) {
	var efi EFIVariableAuthentication2
	if err := binary.Read(f, binary.LittleEndian, &efi.Time); err != nil {
		return nil, errors.Wrap(ErrInvalidAuthHeader, err.Error())
	}
	var err error
	efi.AuthInfo, err = ReadWinCertificateUEFIGUID(f)
	if err != nil {
		return nil, err
	}
	if efi.AuthInfo.Header.CertType != WIN_CERT_TYPE_EFI_GUID {
		return nil, errors.Wrapf(ErrInvalidAuthHeader, "EFI_VARIABLE_AUTHENTICATION_2 accepts only WIN_CERT_TYPE_EFI_GUID, got %x", efi.AuthInfo.Header.CertType)
	}
	if efi.AuthInfo.CertType != EFI_CERT_TYPE_PKCS7_GUID {
		return nil, errors.Wrapf(ErrInvalidAuthHeader, "unexpected certificate type %s", efi.AuthInfo.CertType.Format())
	}
	return &efi, nil
}

func WriteEFIVariableAuthencation2(b io.Writer, e EFIVariableAuthentication2) error {
	if err := binary.Write(b, binary.LittleEndian, e.Time); err != nil {
		return err
	}
	return WriteWinCertificateUEFIGUID(b, &e.AuthInfo)
}

// Page. 237
// Deprecated. But defined because #reasons
type EFIVariableAuthentication struct {
	MonotonicCount uint64
	AuthInfo       util.EFIGUID // WIN_CERTIFICATE_UEFI_GUID
}
