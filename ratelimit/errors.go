package ratelimit

import "github.com/ceyewan/shardproxy/xerrors"

var (
	ErrKeyEmpty     = xerrors.Wrap(xerrors.ErrInvalidInput, "ratelimit: key is empty")
	ErrInvalidLimit = xerrors.Wrap(xerrors.ErrInvalidInput, "ratelimit: invalid limit")
)
