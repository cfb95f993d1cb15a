// Package chain wraps go-ethereum RPC access to PulseChain: batched balance
// reads for the aggregator and transfer-log scans for the swap detector.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

// ERC20 ABI minimal part for balanceOf
const erc20ABI = `[{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"payable":false,"stateMutability":"view","type":"function"}]`

// TransferTopic is keccak256("Transfer(address,address,uint256)").
var TransferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

var (
	parsedERC20ABI  abi.ABI
	parsedERC20Once sync.Once
	erc20MethodID   []byte
)

func initParsedERC20ABI() {
	parsedERC20Once.Do(func() {
		var err error
		parsedERC20ABI, err = abi.JSON(strings.NewReader(erc20ABI))
		if err != nil {
			panic(fmt.Sprintf("failed to parse ERC20 ABI: %v", err))
		}
		balanceOfMethod, ok := parsedERC20ABI.Methods["balanceOf"]
		if !ok {
			panic("balanceOf method not found in parsed ERC20 ABI")
		}
		erc20MethodID = balanceOfMethod.ID
	})
}

// BalanceRequest describes one balance to read in a batch call. An empty
// TokenAddress means the native coin balance.
type BalanceRequest struct {
	WalletAddress string
	TokenAddress  string
}

// BalanceResult is the outcome of one BalanceRequest. Error is per-item so a
// single bad sub-request does not sink the whole batch.
type BalanceResult struct {
	WalletAddress string
	TokenAddress  string
	Balance       *big.Int
	Error         error
}

// Client talks to a PulseChain RPC node.
type Client struct {
	ethClient      *ethclient.Client
	rpcCallTimeout time.Duration
	logger         *zap.Logger
}

// NewClient dials the primary RPC URL, falling back through the provided
// alternates until one connects.
func NewClient(primaryURL string, fallbackURLs []string, connectionTimeout, rpcCallTimeout time.Duration, logger *zap.Logger) (*Client, error) {
	initParsedERC20ABI()
	rpcURLs := append([]string{primaryURL}, fallbackURLs...)
	var lastErr error

	for _, rpcURL := range rpcURLs {
		ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
		client, err := ethclient.DialContext(ctx, rpcURL)
		cancel()

		if err == nil {
			return &Client{
				ethClient:      client,
				rpcCallTimeout: rpcCallTimeout,
				logger:         logger.Named("ChainClient"),
			}, nil
		}
		lastErr = fmt.Errorf("failed to connect to RPC %s: %w", rpcURL, err)
	}

	return nil, fmt.Errorf("all RPC connection attempts failed: %w", lastErr)
}

// Close releases the underlying connection.
func (c *Client) Close() {
	if c.ethClient != nil {
		c.ethClient.Close()
	}
}

// GetBalances fetches multiple balances in one JSON-RPC batch request.
func (c *Client) GetBalances(ctx context.Context, requests []BalanceRequest) ([]BalanceResult, error) {
	if len(requests) == 0 {
		return []BalanceResult{}, nil
	}

	batchElems := make([]rpc.BatchElem, len(requests))
	results := make([]BalanceResult, len(requests))

	for i, reqItem := range requests {
		results[i] = BalanceResult{
			WalletAddress: reqItem.WalletAddress,
			TokenAddress:  reqItem.TokenAddress,
		}

		if reqItem.TokenAddress == "" {
			batchElems[i] = rpc.BatchElem{
				Method: "eth_getBalance",
				Args:   []interface{}{common.HexToAddress(reqItem.WalletAddress), "latest"},
				Result: new(*hexutil.Big),
			}
			continue
		}

		paddedWalletAddress := common.LeftPadBytes(common.HexToAddress(reqItem.WalletAddress).Bytes(), 32)
		callData := append(erc20MethodID, paddedWalletAddress...)
		callArgs := map[string]interface{}{
			"to":   common.HexToAddress(reqItem.TokenAddress),
			"data": hexutil.Bytes(callData),
		}
		batchElems[i] = rpc.BatchElem{
			Method: "eth_call",
			Args:   []interface{}{callArgs, "latest"},
			Result: new(hexutil.Bytes),
		}
	}

	rpcCallCtx, cancel := context.WithTimeout(ctx, c.rpcCallTimeout)
	defer cancel()

	if err := c.ethClient.Client().BatchCallContext(rpcCallCtx, batchElems); err != nil {
		return results, fmt.Errorf("RPC batch call failed: %w", err)
	}

	for i, elem := range batchElems {
		if elem.Error != nil {
			results[i].Error = fmt.Errorf("failed to fetch balance of %s for wallet %s: %w",
				requests[i].TokenAddress, requests[i].WalletAddress, elem.Error)
			continue
		}

		if requests[i].TokenAddress == "" {
			if result, ok := elem.Result.(**hexutil.Big); ok && result != nil && *result != nil {
				results[i].Balance = (*big.Int)(*result)
			} else {
				results[i].Error = fmt.Errorf("failed to decode native balance for %s: unexpected type or nil result", requests[i].WalletAddress)
			}
			continue
		}

		result, ok := elem.Result.(*hexutil.Bytes)
		if !ok || result == nil {
			results[i].Error = fmt.Errorf("failed to decode token balance for %s: unexpected type or nil result", requests[i].TokenAddress)
			continue
		}
		if len(*result) == 0 {
			results[i].Balance = big.NewInt(0)
			continue
		}

		unpacked, err := parsedERC20ABI.Unpack("balanceOf", *result)
		if err != nil {
			results[i].Error = fmt.Errorf("failed to unpack balanceOf result for %s: %w", requests[i].TokenAddress, err)
			continue
		}
		if len(unpacked) == 0 {
			results[i].Error = fmt.Errorf("balanceOf unpack returned no data for %s", requests[i].TokenAddress)
			continue
		}
		balanceVal, ok := unpacked[0].(*big.Int)
		if !ok {
			results[i].Error = fmt.Errorf("failed to assert unpacked balanceOf result to *big.Int for %s, got %T", requests[i].TokenAddress, unpacked[0])
			continue
		}
		results[i].Balance = balanceVal
	}
	return results, nil
}

// TokenBalance reads a single ERC-20 balance.
func (c *Client) TokenBalance(ctx context.Context, walletAddress, tokenAddress string) (*big.Int, error) {
	results, err := c.GetBalances(ctx, []BalanceRequest{{WalletAddress: walletAddress, TokenAddress: tokenAddress}})
	if err != nil {
		return nil, err
	}
	if results[0].Error != nil {
		return nil, results[0].Error
	}
	return results[0].Balance, nil
}

// NativeBalance reads the native coin balance.
func (c *Client) NativeBalance(ctx context.Context, walletAddress string) (*big.Int, error) {
	results, err := c.GetBalances(ctx, []BalanceRequest{{WalletAddress: walletAddress}})
	if err != nil {
		return nil, err
	}
	if results[0].Error != nil {
		return nil, results[0].Error
	}
	return results[0].Balance, nil
}

// BlockNumber returns the latest block number.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	rpcCallCtx, cancel := context.WithTimeout(ctx, c.rpcCallTimeout)
	defer cancel()
	return c.ethClient.BlockNumber(rpcCallCtx)
}

// TransferLogs returns Transfer events in [fromBlock, toBlock] where wallet
// appears as sender or receiver. eth_getLogs cannot OR a topic across
// positions, so two queries are issued and merged.
func (c *Client) TransferLogs(ctx context.Context, fromBlock, toBlock uint64, wallet string) ([]types.Log, error) {
	walletTopic := common.BytesToHash(common.LeftPadBytes(common.HexToAddress(wallet).Bytes(), 32))

	asSender, err := c.filterTransfers(ctx, fromBlock, toBlock, [][]common.Hash{{TransferTopic}, {walletTopic}})
	if err != nil {
		return nil, err
	}
	asReceiver, err := c.filterTransfers(ctx, fromBlock, toBlock, [][]common.Hash{{TransferTopic}, nil, {walletTopic}})
	if err != nil {
		return nil, err
	}

	merged := make([]types.Log, 0, len(asSender)+len(asReceiver))
	seen := make(map[string]struct{}, len(asSender)+len(asReceiver))
	for _, log := range append(asSender, asReceiver...) {
		id := fmt.Sprintf("%s:%d", log.TxHash.Hex(), log.Index)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		merged = append(merged, log)
	}
	return merged, nil
}

func (c *Client) filterTransfers(ctx context.Context, fromBlock, toBlock uint64, topics [][]common.Hash) ([]types.Log, error) {
	rpcCallCtx, cancel := context.WithTimeout(ctx, c.rpcCallTimeout)
	defer cancel()

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Topics:    topics,
	}
	logs, err := c.ethClient.FilterLogs(rpcCallCtx, query)
	if err != nil {
		c.logger.Warn("filter logs failed",
			zap.Uint64("from", fromBlock),
			zap.Uint64("to", toBlock),
			zap.Error(err))
		return nil, err
	}
	return logs, nil
}
