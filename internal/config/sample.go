package config

// Sample returns the starter config written by `blockscrub config init`.
func Sample() string { return sampleYAML }

const sampleYAML = `# blockscrub configuration
formats:
  .blk:
    prefix: "123"
    suffix: "789"
    block_pattern: "A[0-9]C"
    replacement: "A255C"
  .rec:
    prefix: "REC1\n"
    suffix: "END\n"
    block_pattern: "[a-z]{1,16}=[0-9]+;"
    replacement: "redacted=0;"
    max_block_bytes: 512
    processor: sanitize

server:
  listen: ":8080"
  read_timeout: 30s
  write_timeout: 60s

log:
  level: info
  json: false

# include: "**/*.blk"
# exclude: "testdata/**"
fail_on: malicious
`
