package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varalys/blockscrub/internal/types"
)

func testSpec() types.FormatSpec {
	return types.FormatSpec{
		Extension:    ".blk",
		Prefix:       []byte("123"),
		Suffix:       []byte("789"),
		BlockPattern: `A[1-9]C`,
		Replacement:  []byte("A255C"),
	}
}

func mustEngine(t testing.TB, spec types.FormatSpec) *Engine {
	t.Helper()
	e, err := New(spec)
	require.NoError(t, err)
	return e
}

func process(t testing.TB, e *Engine, in string) (*types.ProcessResult, string) {
	t.Helper()
	var out bytes.Buffer
	res, err := e.Process(context.Background(), strings.NewReader(in), &out)
	require.NoError(t, err)
	require.NotNil(t, res)
	return res, out.String()
}

func TestProcess_Scenarios(t *testing.T) {
	e := mustEngine(t, testSpec())

	tests := []struct {
		name     string
		in       string
		want     string
		replaced int
		code     types.ErrorCode
	}{
		{name: "clean with whitespace", in: "  123A1C A2C 789", want: "  123A1C A2C 789"},
		{name: "block runs into footer", in: "123A1CA3CAFC789", want: "123A1CA3CA255C789", replaced: 1},
		{name: "single bad block", in: "123A?C789", want: "123A255C789", replaced: 1},
		{name: "truncated header", in: "1", code: types.CodeTruncatedFile},
		{name: "empty", in: "", code: types.CodeEmptyFile},
		{name: "whitespace only", in: " \r\n\t ", code: types.CodeEmptyFile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, out := process(t, e, tt.in)
			if tt.code != "" {
				require.False(t, res.Success)
				require.Nil(t, res.Report)
				require.NotNil(t, res.Error)
				assert.Equal(t, tt.code, res.Error.Code)
				assert.NotEmpty(t, res.Error.Detail)
				return
			}
			require.True(t, res.Success, "unexpected failure: %v", res.Err())
			require.Nil(t, res.Error)
			assert.Equal(t, tt.want, out)
			assert.Equal(t, tt.replaced, res.Report.ReplacedBlocks)
			assert.Equal(t, tt.replaced > 0, res.Report.WasMalicious)
		})
	}
}

func TestProcess_Errors(t *testing.T) {
	e := mustEngine(t, testSpec())

	tests := []struct {
		name string
		in   string
		code types.ErrorCode
	}{
		{name: "header mismatch mid prefix", in: "124A1C789", code: types.CodeInvalidHeader},
		{name: "header wrong first byte", in: "  X23A1C789", code: types.CodeInvalidHeader},
		{name: "header truncated after two bytes", in: "12", code: types.CodeTruncatedFile},
		{name: "missing footer", in: "123A1C", code: types.CodeInvalidFooter},
		{name: "missing footer trailing whitespace", in: "123A1C \n", code: types.CodeInvalidFooter},
		{name: "header only", in: "123", code: types.CodeInvalidFooter},
		{name: "truncated footer", in: "123A1C78", code: types.CodeTruncatedFile},
		{name: "truncated footer first byte", in: "123A1C7", code: types.CodeTruncatedFile},
		{name: "truncated block", in: "123A1", code: types.CodeTruncatedFile},
		{name: "trailing data", in: "123A1C789 x", code: types.CodeTrailingData},
		{name: "second footer is trailing data", in: "123789789", code: types.CodeTrailingData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, _ := process(t, e, tt.in)
			require.False(t, res.Success)
			require.NotNil(t, res.Error)
			assert.Equal(t, tt.code, res.Error.Code, res.Error.Detail)
			assert.True(t, types.IsCode(res.Err(), tt.code))
		})
	}
}

func TestProcess_FooterLookaheadFallsBackToBlock(t *testing.T) {
	e := mustEngine(t, testSpec())

	// "7A2" looks like a footer start but is not; the peeked bytes are
	// rescanned as a block that runs into the real footer.
	res, out := process(t, e, "123A1C7A2C789")
	require.True(t, res.Success)
	assert.Equal(t, "123A1CA255C789", out)
	assert.Equal(t, 1, res.Report.ReplacedBlocks)
	assert.Equal(t, 2, res.Report.Blocks)
}

func TestProcess_EmptyBodyIsValid(t *testing.T) {
	e := mustEngine(t, testSpec())

	res, out := process(t, e, "123 789\n")
	require.True(t, res.Success)
	assert.Equal(t, "123 789\n", out)
	assert.Zero(t, res.Report.Blocks)
	assert.False(t, res.Report.WasMalicious)
}

func TestProcess_WhitespacePreserved(t *testing.T) {
	e := mustEngine(t, testSpec())

	in := "\r\n\t 123 A1C\t\tA2C\r\n  A9C\n789 \n\t"
	res, out := process(t, e, in)
	require.True(t, res.Success)
	assert.Equal(t, in, out)
	assert.Equal(t, 3, res.Report.Blocks)
	assert.Equal(t, int64(len(in)), res.Report.BytesIn)
	assert.Equal(t, int64(len(in)), res.Report.BytesOut)
}

func TestProcess_WhitespaceAroundReplacedBlocks(t *testing.T) {
	e := mustEngine(t, testSpec())

	res, out := process(t, e, " 123\nAXC\nA1C\n789\n")
	require.True(t, res.Success)
	// An unmatched block keeps accumulating, whitespace included, until the
	// next suffix-start byte.
	assert.Equal(t, " 123\nA255C789\n", out)
	assert.Equal(t, 1, res.Report.ReplacedBlocks)
	assert.Equal(t, 1, res.Report.Blocks)
}

func TestProcess_ReplacementLengthMayDiffer(t *testing.T) {
	spec := testSpec()
	spec.Replacement = nil
	e := mustEngine(t, spec)

	res, out := process(t, e, "123A?C789")
	require.True(t, res.Success)
	assert.Equal(t, "123789", out)
	assert.Equal(t, int64(9), res.Report.BytesIn)
	assert.Equal(t, int64(6), res.Report.BytesOut)

	spec.Replacement = []byte("[removed block]")
	e = mustEngine(t, spec)
	res, out = process(t, e, "123A1C A?C 789")
	require.True(t, res.Success)
	assert.Equal(t, "123A1C [removed block]789", out)
}

func TestProcess_EmptyPrefixKeepsFirstByte(t *testing.T) {
	spec := testSpec()
	spec.Prefix = nil
	e := mustEngine(t, spec)

	res, out := process(t, e, "\nA1CA2C789")
	require.True(t, res.Success)
	assert.Equal(t, "\nA1CA2C789", out)
	assert.Equal(t, 2, res.Report.Blocks)
}

func TestProcess_EmptySuffix(t *testing.T) {
	spec := testSpec()
	spec.Suffix = nil
	e := mustEngine(t, spec)

	res, out := process(t, e, "123 A1C\nA2C\n")
	require.True(t, res.Success)
	assert.Equal(t, "123 A1C\nA2C\n", out)

	// Without a suffix, an unmatched block can only end at end of input.
	res, _ = process(t, e, "123A1CA?C")
	require.False(t, res.Success)
	assert.Equal(t, types.CodeTruncatedFile, res.Error.Code)
}

func TestProcess_MaxBlockBytes(t *testing.T) {
	spec := testSpec()
	spec.Prefix = nil
	spec.Suffix = nil
	spec.MaxBlockBytes = 3
	e := mustEngine(t, spec)

	res, out := process(t, e, "A1CA?CA2C")
	require.True(t, res.Success, "unexpected failure: %v", res.Err())
	assert.Equal(t, "A1CA255CA2C", out)
	assert.Equal(t, 1, res.Report.ReplacedBlocks)
	assert.Equal(t, 3, res.Report.Blocks)
}

func TestProcess_DefaultMaxBlockBytes(t *testing.T) {
	e := mustEngine(t, testSpec())
	assert.Equal(t, types.DefaultMaxBlockBytes, e.Spec().MaxBlockBytes)

	junk := strings.Repeat("x", types.DefaultMaxBlockBytes+10)
	res, out := process(t, e, "123"+junk+"789")
	require.True(t, res.Success)
	// The first capped block is replaced, the 10-byte remainder too.
	assert.Equal(t, "123A255CA255C789", out)
	assert.Equal(t, 2, res.Report.ReplacedBlocks)
}

func TestProcess_Strict(t *testing.T) {
	spec := testSpec()
	spec.Processor = types.ProcessorStrict
	e := mustEngine(t, spec)

	res, _ := process(t, e, "123A1CA2C789")
	require.True(t, res.Success)

	res, _ = process(t, e, "123A1CA?C789")
	require.False(t, res.Success)
	assert.Equal(t, types.CodeInvalidBlock, res.Error.Code)
	assert.Contains(t, res.Error.Detail, "offset 6")

	spec.Suffix = nil
	spec.MaxBlockBytes = 3
	e = mustEngine(t, spec)
	res, _ = process(t, e, "123A?CX")
	require.False(t, res.Success)
	assert.Equal(t, types.CodeUnexpectedByte, res.Error.Code)
	assert.Contains(t, res.Error.Detail, "0x58")
}

func TestProcess_RequiresFullMatch(t *testing.T) {
	spec := testSpec()
	spec.BlockPattern = `[1-6]`
	e := mustEngine(t, spec)

	// "X5" contains a valid block but is not one.
	res, out := process(t, e, "123 5 4 X5 789")
	require.True(t, res.Success)
	assert.Equal(t, "123 5 4 A255C789", out)
	assert.Equal(t, 3, res.Report.Blocks)
	assert.Equal(t, 1, res.Report.ReplacedBlocks)
}

func TestCompileGrammar_MatchesBytes(t *testing.T) {
	tests := []struct {
		pattern string
		in      []byte
		want    bool
	}{
		{`\xff`, []byte{0xff}, true},
		{`\xff`, []byte("\u00ff"), false},
		{`\xe9`, []byte("é"), false},
		{`[\x00-\xff]{2}`, []byte("é"), true},
		{`[\x00-\xff]{2}`, []byte{0xe9}, false},
		{`\x{FFFD}`, []byte{0xfe}, false},
		{`\x{FFFD}`, []byte{0x80}, false},
		{`.`, []byte{0x80}, true},
		{`[\x80-\xff]+`, []byte{0x80, 0xc3, 0x28, 0xff}, false},
		{`[\x80-\xff]+`, []byte{0x80, 0xc3, 0xa9, 0xff}, true},
	}
	for _, tt := range tests {
		g, err := CompileGrammar(tt.pattern)
		require.NoError(t, err)
		assert.Equal(t, tt.want, g.FullMatch(tt.in), "%s on % x", tt.pattern, tt.in)
	}
}

func TestProcess_BinaryBlocksAreCleanByteForByte(t *testing.T) {
	e := mustEngine(t, types.FormatSpec{
		Extension:    ".bin",
		Prefix:       []byte("H"),
		Suffix:       []byte("!"),
		BlockPattern: `[\x00-\xff]{2}`,
		Replacement:  []byte("R"),
	})

	in := "H AB \xc3\xa9 CD !"
	res, out := process(t, e, in)
	require.True(t, res.Success)
	assert.Equal(t, in, out)
	assert.False(t, res.Report.WasMalicious)
	assert.Equal(t, 3, res.Report.Blocks)
}

func TestProcess_HighBytePatterns(t *testing.T) {
	spec := types.FormatSpec{
		Extension:    ".bin",
		Prefix:       []byte{0x01},
		Suffix:       []byte{0x02},
		BlockPattern: `\xff`,
		Replacement:  []byte("R"),
	}
	res, out := process(t, mustEngine(t, spec), "\x01\xff\xff\x02")
	require.True(t, res.Success)
	assert.Equal(t, "\x01\xff\xff\x02", out)
	assert.Zero(t, res.Report.ReplacedBlocks)

	// invalid UTF-8 is not folded into U+FFFD
	spec.BlockPattern = `\x{FFFD}`
	res, out = process(t, mustEngine(t, spec), "\x01\xfe\x80\x02")
	require.True(t, res.Success)
	assert.Equal(t, "\x01R\x02", out)
	assert.Equal(t, 1, res.Report.ReplacedBlocks)
}

func TestProcess_FixedWidthBinaryBlocks(t *testing.T) {
	e := mustEngine(t, types.FormatSpec{
		Extension:    ".bin",
		Prefix:       []byte("\x7fBIN"),
		Suffix:       []byte("END"),
		BlockPattern: `[\x80-\xff]{4}`,
		Replacement:  []byte("R"),
	})

	clean := "\x7fBIN\x80\x81\x82\x83\xc3\xa9\xc3\xa9\xff\xff\xff\xffEND"
	res, out := process(t, e, clean)
	require.True(t, res.Success)
	assert.Equal(t, clean, out)
	assert.Equal(t, 3, res.Report.Blocks)
	assert.Zero(t, res.Report.ReplacedBlocks)

	res, out = process(t, e, "\x7fBIN\x80\x81\x82\x83\x90A\x91END")
	require.True(t, res.Success)
	assert.Equal(t, "\x7fBIN\x80\x81\x82\x83REND", out)
	assert.Equal(t, 2, res.Report.Blocks)
	assert.Equal(t, 1, res.Report.ReplacedBlocks)
}

func TestProcess_CustomGrammar(t *testing.T) {
	calls := 0
	g := GrammarFunc(func(b []byte) bool {
		calls++
		return len(b) == 2 && b[0] == b[1]
	})
	e, err := NewWithGrammar(testSpec(), g)
	require.NoError(t, err)

	res, out := process(t, e, "123aabbxy789")
	require.True(t, res.Success)
	assert.Equal(t, "123aabbA255C789", out)
	assert.Positive(t, calls)
}

func TestProcess_CleanInputIsIdempotent(t *testing.T) {
	e := mustEngine(t, testSpec())
	rng := rand.New(rand.NewPCG(7, 11))
	ws := []string{"", " ", "\n", "\r\n", "\t", "  "}
	// 7 is the first footer byte and would end a block early.
	digits := "12345689"

	for i := 0; i < 200; i++ {
		var sb strings.Builder
		sb.WriteString(ws[rng.IntN(len(ws))])
		sb.WriteString("123")
		n := rng.IntN(20)
		for j := 0; j < n; j++ {
			sb.WriteString(ws[rng.IntN(len(ws))])
			fmt.Fprintf(&sb, "A%cC", digits[rng.IntN(len(digits))])
		}
		sb.WriteString(ws[rng.IntN(len(ws))])
		sb.WriteString("789")
		sb.WriteString(ws[rng.IntN(len(ws))])

		in := sb.String()
		res, out := process(t, e, in)
		require.True(t, res.Success, "input %q: %v", in, res.Err())
		require.Equal(t, in, out)
		require.Equal(t, n, res.Report.Blocks)
		require.False(t, res.Report.WasMalicious)
	}
}

func TestProcess_CountsEveryReplacedBlock(t *testing.T) {
	spec := testSpec()
	spec.Prefix = nil
	spec.Suffix = []byte("!")
	e := mustEngine(t, spec)
	rng := rand.New(rand.NewPCG(3, 5))

	for i := 0; i < 200; i++ {
		var in, want strings.Builder
		bad := 0
		n := 1 + rng.IntN(15)
		for j := 0; j < n; j++ {
			if rng.IntN(3) == 0 {
				// An invalid block is closed by the next "!" byte, which
				// here is always the footer.
				in.WriteString("AZC")
				want.WriteString("A255C")
				bad++
				break
			}
			blk := fmt.Sprintf("A%dC", 1+rng.IntN(9))
			in.WriteString(blk)
			want.WriteString(blk)
		}
		in.WriteString("!")
		want.WriteString("!")

		res, out := process(t, e, in.String())
		require.True(t, res.Success, "input %q: %v", in.String(), res.Err())
		require.Equal(t, want.String(), out)
		require.Equal(t, bad, res.Report.ReplacedBlocks)
		require.Equal(t, bad > 0, res.Report.WasMalicious)
	}
}

func TestProcess_Concurrent(t *testing.T) {
	e := mustEngine(t, testSpec())

	inputs := map[string]string{
		"  123A1C A2C 789":  "  123A1C A2C 789",
		"123A1CA3CAFC789":   "123A1CA3CA255C789",
		"123A?C789":         "123A255C789",
		"123\nA9C\tA8C789 ": "123\nA9C\tA8C789 ",
	}

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 16; i++ {
		for in, want := range inputs {
			wg.Add(1)
			go func(in, want string) {
				defer wg.Done()
				var out bytes.Buffer
				res, err := e.Process(context.Background(), strings.NewReader(in), &out)
				if err != nil {
					errs <- err
					return
				}
				if !res.Success || out.String() != want {
					errs <- fmt.Errorf("input %q: got %q success=%v", in, out.String(), res.Success)
				}
			}(in, want)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

type cancelAfterReader struct {
	r      io.Reader
	n      int
	cancel context.CancelFunc
}

func (c *cancelAfterReader) Read(p []byte) (int, error) {
	if c.n <= 0 {
		c.cancel()
	}
	c.n--
	return c.r.Read(p[:1])
}

func TestProcess_Canceled(t *testing.T) {
	e := mustEngine(t, testSpec())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := e.Process(ctx, strings.NewReader("123A1C789"), io.Discard)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.Canceled)

	ctx, cancel = context.WithCancel(context.Background())
	defer cancel()
	r := &cancelAfterReader{r: strings.NewReader("123A1CA2CA3C789"), n: 5, cancel: cancel}
	res, err = e.Process(ctx, r, io.Discard)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.Canceled)
}

type failingWriter struct{ err error }

func (w failingWriter) Write([]byte) (int, error) { return 0, w.err }

func TestProcess_IOErrors(t *testing.T) {
	e := mustEngine(t, testSpec())

	boom := errors.New("boom")
	res, err := e.Process(context.Background(), iotest.ErrReader(boom), io.Discard)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "read input")

	sinkErr := errors.New("disk full")
	res, err = e.Process(context.Background(), strings.NewReader("123A1C789"), failingWriter{err: sinkErr})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, sinkErr)
}

func TestProcess_OneByteReader(t *testing.T) {
	e := mustEngine(t, testSpec())

	var out bytes.Buffer
	res, err := e.Process(context.Background(), iotest.OneByteReader(strings.NewReader("123A1CA3CAFC789")), &out)
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "123A1CA3CA255C789", out.String())
}

func TestNew_InvalidSpec(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*types.FormatSpec)
	}{
		{name: "bad pattern", mutate: func(s *types.FormatSpec) { s.BlockPattern = "A[" }},
		{name: "empty pattern", mutate: func(s *types.FormatSpec) { s.BlockPattern = "" }},
		{name: "whitespace suffix", mutate: func(s *types.FormatSpec) { s.Suffix = []byte(" 789") }},
		{name: "whitespace prefix", mutate: func(s *types.FormatSpec) { s.Prefix = []byte("\n123") }},
		{name: "unknown processor", mutate: func(s *types.FormatSpec) { s.Processor = "lenient" }},
		{name: "negative cap", mutate: func(s *types.FormatSpec) { s.MaxBlockBytes = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := testSpec()
			tt.mutate(&spec)
			e, err := New(spec)
			assert.Nil(t, e)
			assert.ErrorIs(t, err, ErrInvalidSpec)
		})
	}
}

func TestEngine_SpecIsCopied(t *testing.T) {
	spec := testSpec()
	e := mustEngine(t, spec)
	spec.Prefix[0] = 'X'

	res, _ := process(t, e, "123A1C789")
	assert.True(t, res.Success)
	assert.Equal(t, types.ProcessorSanitize, e.Spec().Processor)
}

func BenchmarkProcess(b *testing.B) {
	e := mustEngine(b, testSpec())
	var sb strings.Builder
	sb.WriteString("123\n")
	digits := "12345689"
	for i := 0; i < 10000; i++ {
		fmt.Fprintf(&sb, "A%cC ", digits[i%len(digits)])
	}
	sb.WriteString("789\n")
	payload := sb.String()

	b.ReportAllocs()
	b.SetBytes(int64(len(payload)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.Process(context.Background(), strings.NewReader(payload), io.Discard); err != nil {
			b.Fatal(err)
		}
	}
}
