package ethereum

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// poolABIJSON lists the read-only surface of the pool contract.
const poolABIJSON = `[
	{"type":"function","name":"reserveETH","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"reserveSimplest","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"totalLPTokens","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"lpTokens","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getSwapOutput","stateMutability":"view","inputs":[{"name":"tokenIn","type":"address"},{"name":"amountIn","type":"uint256"}],"outputs":[{"name":"amountOut","type":"uint256"}]},
	{"type":"function","name":"getLiquidityOutput","stateMutability":"view","inputs":[{"name":"amountToken","type":"uint256"},{"name":"amountEth","type":"uint256"}],"outputs":[{"name":"lpAmount","type":"uint256"}]},
	{"type":"function","name":"getRemoveLiquidityOutput","stateMutability":"view","inputs":[{"name":"lpAmount","type":"uint256"}],"outputs":[{"name":"amountToken","type":"uint256"},{"name":"amountEth","type":"uint256"}]}
]`

// erc20ABIJSON is the part of ERC-20 needed to read a token balance.
const erc20ABIJSON = `[
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

var (
	poolABI  = mustParseABI(poolABIJSON)
	erc20ABI = mustParseABI(erc20ABIJSON)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
