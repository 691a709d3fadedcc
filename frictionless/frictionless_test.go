package frictionless

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAcceptsWellFormedPackage(t *testing.T) {
	pkg := DataPackage{
		Name: "submission-manifest",
		Resources: []DataResource{
			{
				Bytes:  10751355980,
				Format: "fasta",
				Hash:   "55c3afc0a2d3b256332425eeebc581ac",
				Id:     "file-001",
				Name:   "ga0456371_contigs",
				Path:   "img/submissions/253630/Ga0456371_contigs.fna",
			},
		},
	}
	dp, err := Validate(pkg)
	require.NoError(t, err)
	assert.NotNil(t, dp)
}

func TestValidateRejectsEmptyResourceName(t *testing.T) {
	pkg := DataPackage{
		Name: "submission-manifest",
		Resources: []DataResource{
			{Bytes: 10, Format: "fasta", Hash: "abc", Id: "file-001", Path: "a/b.fna"},
		},
	}
	_, err := Validate(pkg)
	assert.Error(t, err)
}

func TestHashAlgorithmDefaultsToMD5(t *testing.T) {
	r := DataResource{Hash: "55c3afc0a2d3b256332425eeebc581ac"}
	assert.Equal(t, "md5", r.HashAlgorithm())
}

func TestHashAlgorithmReadsPrefix(t *testing.T) {
	r := DataResource{Hash: "sha256:abcdef"}
	assert.Equal(t, "sha256", r.HashAlgorithm())
}
