package networks

import "testing"

const contract = "0x6c593Ca0081b80e2bb447E080C0b8Cff4c76F8F4"

func TestHexChainID(t *testing.T) {
	if got := BaseSepolia.HexChainID(); got != "0x14a34" {
		t.Errorf("Expected 0x14a34, but got %s", got)
	}
	id, err := ParseChainID("0x14a34")
	if err != nil || id != BaseSepoliaChainID {
		t.Fatalf("Expected %d, got %d (err %v)", BaseSepoliaChainID, id, err)
	}
	id, err = ParseChainID("8453")
	if err != nil || id != BaseMainnetChainID {
		t.Fatalf("Expected %d, got %d (err %v)", BaseMainnetChainID, id, err)
	}
}

func TestResolve(t *testing.T) {
	t.Run("Test nothing configured means simulation", func(t *testing.T) {
		reg := NewRegistry(BaseSepolia, BaseMainnet)
		if reg.AnyConfigured() {
			t.Fatal("Expected no configured network")
		}
		if _, ok := reg.Resolve(BaseSepoliaChainID); ok {
			t.Fatal("Expected resolution to fail")
		}
	})

	t.Run("Test active chain wins when configured", func(t *testing.T) {
		test, main := BaseSepolia, BaseMainnet
		test.ContractAddress = contract
		main.ContractAddress = "0x0000000000000000000000000000000000000abc"
		reg := NewRegistry(test, main)

		n, ok := reg.Resolve(BaseMainnetChainID)
		if !ok || n.ChainID != BaseMainnetChainID {
			t.Fatalf("Expected main network, got %+v", n)
		}
	})

	t.Run("Test unknown active chain falls back to default", func(t *testing.T) {
		test := BaseSepolia
		test.ContractAddress = contract
		reg := NewRegistry(BaseMainnet, test)
		reg.SetDefault(BaseSepoliaChainID)

		n, ok := reg.Resolve(1)
		if !ok || n.ChainID != BaseSepoliaChainID {
			t.Fatalf("Expected test network, got %+v", n)
		}
		n, ok = reg.Resolve(BaseMainnetChainID)
		if !ok || n.ChainID != BaseSepoliaChainID {
			t.Fatalf("Expected fallback to test network, got %+v", n)
		}
	})
}

func TestAddChainParams(t *testing.T) {
	params := BaseSepolia.AddChainParams()
	if params["chainId"] != "0x14a34" {
		t.Errorf("unexpected chainId %v", params["chainId"])
	}
	urls, ok := params["blockExplorerUrls"].([]string)
	if !ok || urls[0] != "https://sepolia.basescan.org" {
		t.Errorf("unexpected explorer urls %v", params["blockExplorerUrls"])
	}
}
