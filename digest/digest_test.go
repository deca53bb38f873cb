package digest

import "testing"

func TestParse(t *testing.T) {
	valid := "sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

	cases := []struct {
		name    string
		in      string
		wantErr error
	}{
		{"valid", valid, nil},
		{"uppercase hex", "sha256:E3B0C44298FC1C149AFBF4C8996FB92427AE41E4649B934CA495991B7852B855", ErrDigestInvalidFormat},
		{"short hex", "sha256:abcd", ErrDigestInvalidFormat},
		{"no colon", "deadbeef", ErrDigestInvalidFormat},
		{"unknown algorithm", "md5:" + "d41d8cd98f00b204e9800998ecf8427e", ErrDigestUnsupported},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Parse(c.in)
			if c.wantErr == nil && err != nil {
				t.Fatalf("Parse(%q): unexpected error: %v", c.in, err)
			}
			if c.wantErr != nil && err != c.wantErr {
				t.Fatalf("Parse(%q): got %v, want %v", c.in, err, c.wantErr)
			}
		})
	}
}

func TestDigesterMatchesFromBytes(t *testing.T) {
	data := []byte("hello, registry")

	d := NewCanonicalDigester()
	if _, err := d.Hash().Write(data); err != nil {
		t.Fatal(err)
	}

	if got, want := d.Digest(), FromBytes(data); got != want {
		t.Fatalf("streaming digest %q != bulk digest %q", got, want)
	}
}

func TestAlgorithmAndHex(t *testing.T) {
	d, err := Parse("sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855")
	if err != nil {
		t.Fatal(err)
	}
	if d.Algorithm() != Canonical {
		t.Fatalf("Algorithm() = %q, want %q", d.Algorithm(), Canonical)
	}
	if d.Hex() != "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855" {
		t.Fatalf("Hex() = %q", d.Hex())
	}
}
